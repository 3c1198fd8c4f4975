// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// RelyingParty is the default Verifier, adapting the go-webauthn
// library. Credential lookups during ceremonies go through the
// CredentialStore; attestation trust is resolved through the optional
// MetadataService.
type RelyingParty struct {
	webauthn *webauthn.WebAuthn
	creds    CredentialStore
	metadata MetadataService // optional
}

// NewRelyingParty creates a verifier from the service configuration.
// metadata may be nil, in which case attestation is never trusted.
func NewRelyingParty(config *Config, creds CredentialStore, metadata MetadataService) (*RelyingParty, error) {
	wa, err := webauthn.New(config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}
	return &RelyingParty{
		webauthn: wa,
		creds:    creds,
		metadata: metadata,
	}, nil
}

// StartRegistration produces creation options for the identity. The
// user's existing credentials are excluded so an authenticator is not
// enrolled twice.
func (rp *RelyingParty) StartRegistration(identity UserIdentity, requireResidentKey bool) (*CreationOptions, error) {
	user := rp.user(identity)

	opts := []webauthn.RegistrationOption{
		webauthn.WithExclusions(rp.creds.CredentialDescriptorsForUser(identity.Name)),
	}
	if requireResidentKey {
		opts = append(opts, webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:        protocol.ResidentKeyRequirementRequired,
			RequireResidentKey: protocol.ResidentKeyRequired(),
			UserVerification:   protocol.VerificationPreferred,
		}))
	}

	options, session, err := rp.webauthn.BeginRegistration(user, opts...)
	if err != nil {
		return nil, WrapError("webauthn.StartRegistration", err)
	}

	return &CreationOptions{
		User:      identity,
		PublicKey: options,
		Session:   session,
	}, nil
}

// FinishRegistration validates the attestation response against the
// stored creation options. Cryptographic rejection is returned as a
// *VerificationError.
func (rp *RelyingParty) FinishRegistration(opts *CreationOptions, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	user := rp.user(opts.User)

	credential, err := rp.webauthn.CreateCredential(user, *opts.Session, response)
	if err != nil {
		return nil, verificationError(err)
	}

	result := &RegistrationResult{
		CredentialID:       credential.ID,
		PublicKeyCOSE:      credential.PublicKey,
		SignatureCount:     credential.Authenticator.SignCount,
		Transports:         credential.Transport,
		AttestationCertDER: attestationCertDER(response),
	}

	if rp.metadata != nil && len(result.AttestationCertDER) > 0 {
		if cert, certErr := x509.ParseCertificate(result.AttestationCertDER); certErr == nil {
			if att, attErr := rp.metadata.Attestation(cert); attErr == nil && att != nil {
				result.AttestationTrusted = att.Trusted
			}
		}
	}

	return result, nil
}

// StartAssertion produces assertion options. An empty username starts a
// username-less ceremony for discoverable credentials.
func (rp *RelyingParty) StartAssertion(username string) (*AssertionOptions, error) {
	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		err     error
	)

	if username == "" {
		options, session, err = rp.webauthn.BeginDiscoverableLogin()
	} else {
		user, ok := rp.userForUsername(username)
		if !ok {
			return nil, WrapError("webauthn.StartAssertion", ErrUserNotFound)
		}
		if len(user.credentials) == 0 {
			return nil, WrapError("webauthn.StartAssertion", ErrNoCredentials)
		}
		options, session, err = rp.webauthn.BeginLogin(user)
	}
	if err != nil {
		return nil, WrapError("webauthn.StartAssertion", err)
	}

	return &AssertionOptions{
		Username:  username,
		PublicKey: options,
		Session:   session,
	}, nil
}

// FinishAssertion validates the assertion response against the stored
// assertion options. Cryptographic rejection is returned as a
// *VerificationError.
func (rp *RelyingParty) FinishAssertion(opts *AssertionOptions, response *protocol.ParsedCredentialAssertionData) (*AssertionResult, error) {
	var (
		username   string
		credential *webauthn.Credential
		err        error
	)

	if opts.Username == "" {
		credential, err = rp.webauthn.ValidateDiscoverableLogin(rp.discoverableUserHandler(&username), *opts.Session, response)
	} else {
		username = opts.Username
		user, ok := rp.userForUsername(username)
		if !ok {
			return nil, WrapError("webauthn.FinishAssertion", ErrUserNotFound)
		}
		credential, err = rp.webauthn.ValidateLogin(user, *opts.Session, response)
	}
	if err != nil {
		return nil, verificationError(err)
	}

	handle, ok := rp.creds.UserHandleForUsername(username)
	if !ok {
		return nil, WrapError("webauthn.FinishAssertion", ErrUserNotFound)
	}

	result := &AssertionResult{
		Success:        true,
		Username:       username,
		UserHandle:     handle,
		CredentialID:   credential.ID,
		SignatureCount: credential.Authenticator.SignCount,
	}
	if credential.Authenticator.CloneWarning {
		result.Warnings = append(result.Warnings,
			"Signature counter did not increase. This may be a sign of a compromised authenticator.")
	}
	return result, nil
}

// discoverableUserHandler resolves the account the authenticator
// identified itself as during a username-less ceremony. The resolved
// username is written through the pointer for the caller.
func (rp *RelyingParty) discoverableUserHandler(username *string) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		name, ok := rp.creds.UsernameForUserHandle(userHandle)
		if !ok {
			return nil, ErrUserNotFound
		}
		user, ok := rp.userForUsername(name)
		if !ok {
			return nil, ErrUserNotFound
		}
		*username = name
		return user, nil
	}
}

// user builds the library's user view from an identity plus the stored
// credentials.
func (rp *RelyingParty) user(identity UserIdentity) *verifierUser {
	regs := rp.creds.RegistrationsForUser(identity.Name)
	credentials := make([]webauthn.Credential, 0, len(regs))
	for _, reg := range regs {
		credentials = append(credentials, reg.webauthnCredential())
	}
	return &verifierUser{
		identity:    identity,
		credentials: credentials,
	}
}

func (rp *RelyingParty) userForUsername(username string) (*verifierUser, bool) {
	regs := rp.creds.RegistrationsForUser(username)
	if len(regs) == 0 {
		return nil, false
	}
	user := rp.user(regs[0].UserIdentity)
	return user, true
}

// verifierUser adapts a UserIdentity to the library's user interface.
type verifierUser struct {
	identity    UserIdentity
	credentials []webauthn.Credential
}

func (u *verifierUser) WebAuthnID() []byte {
	return u.identity.ID
}

func (u *verifierUser) WebAuthnName() string {
	return u.identity.Name
}

func (u *verifierUser) WebAuthnDisplayName() string {
	return u.identity.DisplayName
}

func (u *verifierUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// verificationError maps library errors to VerificationError so the
// service can distinguish cryptographic rejection from internal
// failures.
func verificationError(err error) error {
	var pErr *protocol.Error
	if errors.As(err, &pErr) {
		reason := pErr.Details
		if reason == "" {
			reason = pErr.Type
		}
		return &VerificationError{Reason: reason, Err: err}
	}
	return WrapError("webauthn.verify", err)
}

// attestationCertDER extracts the leaf attestation certificate from the
// attestation statement, if one was conveyed.
func attestationCertDER(response *protocol.ParsedCredentialCreationData) []byte {
	if response == nil {
		return nil
	}
	x5c, ok := response.Response.AttestationObject.AttStatement["x5c"].([]interface{})
	if !ok || len(x5c) == 0 {
		return nil
	}
	der, ok := x5c[0].([]byte)
	if !ok {
		return nil
	}
	return der
}
