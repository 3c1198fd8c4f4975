// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Store sizing defaults, matching the reference capacity policy.
const (
	DefaultCredentialCacheSize = 1000
	DefaultCredentialCacheTTL  = 24 * time.Hour

	DefaultSessionCacheSize = 100
	DefaultSessionCacheTTL  = 5 * time.Minute

	DefaultRequestCacheSize = 100
	DefaultRequestCacheTTL  = 10 * time.Minute
)

// Config configures the ceremony service. It is an immutable value
// handed to NewService; there is no process-global configuration.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "example.com"
	RPID string `yaml:"id" json:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	RPDisplayName string `yaml:"display_name" json:"display_name"`

	// RPOrigins are the allowed origins for WebAuthn operations.
	RPOrigins []string `yaml:"origins" json:"origins"`

	// AppID is the legacy U2F application identifier, used by the U2F
	// compatibility path. Defaults to the first origin.
	AppID string `yaml:"app_id,omitempty" json:"app_id,omitempty"`

	// Timeout is the ceremony timeout.
	// Default: 60 seconds
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// UserVerification specifies the user verification requirement.
	// Options: "required", "preferred", "discouraged"
	// Default: "preferred"
	UserVerification string `yaml:"user_verification" json:"user_verification"`

	// AttestationPreference specifies the attestation conveyance preference.
	// Options: "none", "indirect", "direct", "enterprise"
	// Default: "direct"
	AttestationPreference string `yaml:"attestation" json:"attestation"`

	// CredentialCacheSize bounds the number of accounts held in memory.
	CredentialCacheSize int `yaml:"credential_cache_size" json:"credential_cache_size"`

	// CredentialCacheTTL is the idle expiry for an account's registrations.
	// An evicted account must re-register; this is a capacity policy,
	// not a correctness guarantee.
	CredentialCacheTTL time.Duration `yaml:"credential_cache_ttl" json:"credential_cache_ttl"`

	// SessionCacheSize bounds the number of live sessions.
	SessionCacheSize int `yaml:"session_cache_size" json:"session_cache_size"`

	// SessionCacheTTL is the idle expiry for sessions. Session loss
	// forces re-authentication.
	SessionCacheTTL time.Duration `yaml:"session_cache_ttl" json:"session_cache_ttl"`

	// RequestCacheSize bounds the number of pending ceremonies per kind.
	RequestCacheSize int `yaml:"request_cache_size" json:"request_cache_size"`

	// RequestCacheTTL is the idle expiry for pending ceremonies. An
	// expired ceremony surfaces as "no such ceremony in progress".
	RequestCacheTTL time.Duration `yaml:"request_cache_ttl" json:"request_cache_ttl"`

	// Debug enables debug logging in the verifier library.
	Debug bool `yaml:"debug" json:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one RPOrigin is required")
	}

	switch c.UserVerification {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user verification: %s", c.UserVerification)
	}

	switch c.AttestationPreference {
	case "", "none", "indirect", "direct", "enterprise":
	default:
		return fmt.Errorf("invalid attestation preference: %s", c.AttestationPreference)
	}

	if c.CredentialCacheSize < 0 || c.SessionCacheSize < 0 || c.RequestCacheSize < 0 {
		return fmt.Errorf("cache sizes must not be negative")
	}

	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.AppID == "" && len(c.RPOrigins) > 0 {
		c.AppID = c.RPOrigins[0]
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserVerification == "" {
		c.UserVerification = "preferred"
	}
	if c.AttestationPreference == "" {
		c.AttestationPreference = "direct"
	}
	if c.CredentialCacheSize == 0 {
		c.CredentialCacheSize = DefaultCredentialCacheSize
	}
	if c.CredentialCacheTTL == 0 {
		c.CredentialCacheTTL = DefaultCredentialCacheTTL
	}
	if c.SessionCacheSize == 0 {
		c.SessionCacheSize = DefaultSessionCacheSize
	}
	if c.SessionCacheTTL == 0 {
		c.SessionCacheTTL = DefaultSessionCacheTTL
	}
	if c.RequestCacheSize == 0 {
		c.RequestCacheSize = DefaultRequestCacheSize
	}
	if c.RequestCacheTTL == 0 {
		c.RequestCacheTTL = DefaultRequestCacheTTL
	}
}

// ToWebAuthnConfig converts the Config to the verifier library's
// configuration.
func (c *Config) ToWebAuthnConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:          c.RPID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     c.RPOrigins,
		Debug:         c.Debug,
	}

	if c.Timeout > 0 {
		cfg.Timeouts = webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
		}
	}

	switch c.AttestationPreference {
	case "none":
		cfg.AttestationPreference = protocol.PreferNoAttestation
	case "indirect":
		cfg.AttestationPreference = protocol.PreferIndirectAttestation
	case "direct":
		cfg.AttestationPreference = protocol.PreferDirectAttestation
	case "enterprise":
		cfg.AttestationPreference = protocol.PreferEnterpriseAttestation
	}

	cfg.AuthenticatorSelection = protocol.AuthenticatorSelection{}

	switch c.UserVerification {
	case "required":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationRequired
	case "preferred":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationPreferred
	case "discouraged":
		cfg.AuthenticatorSelection.UserVerification = protocol.VerificationDiscouraged
	}

	return cfg
}
