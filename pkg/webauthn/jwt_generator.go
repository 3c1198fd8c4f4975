// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenGenerator mints tokens for users who completed a ceremony.
type TokenGenerator interface {
	GenerateToken(ctx context.Context, identity UserIdentity) (string, error)
}

// DefaultJWTGenerator issues JWTs for authenticated users. The signing
// method is chosen from the key type: ES256 for ECDSA, RS256 for RSA,
// EdDSA for Ed25519.
type DefaultJWTGenerator struct {
	privateKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   []string
	expiresIn  time.Duration
	keyID      string
}

// JWTGeneratorConfig contains configuration for the JWT generator.
type JWTGeneratorConfig struct {
	// PrivateKey is the key used to sign tokens (required)
	PrivateKey crypto.PrivateKey
	// Issuer is the JWT issuer claim (default: "webauthn-authenticator")
	Issuer string
	// Audience is the JWT audience claim (default: ["webauthn-authenticator"])
	Audience []string
	// ExpiresIn is how long tokens are valid (default: 1 hour)
	ExpiresIn time.Duration
	// KeyID is the key identifier for the kid header (optional)
	KeyID string
}

// NewDefaultJWTGenerator creates a new JWT generator with the given
// configuration.
func NewDefaultJWTGenerator(config *JWTGeneratorConfig) (*DefaultJWTGenerator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "webauthn-authenticator"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"webauthn-authenticator"}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	var (
		method    jwt.SigningMethod
		publicKey crypto.PublicKey
	)
	switch key := config.PrivateKey.(type) {
	case *ecdsa.PrivateKey:
		method = jwt.SigningMethodES256
		publicKey = key.Public()
	case *rsa.PrivateKey:
		method = jwt.SigningMethodRS256
		publicKey = key.Public()
	case ed25519.PrivateKey:
		method = jwt.SigningMethodEdDSA
		publicKey = key.Public()
	default:
		return nil, fmt.Errorf("unsupported private key type %T", config.PrivateKey)
	}

	return &DefaultJWTGenerator{
		privateKey: config.PrivateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		expiresIn:  expiresIn,
		keyID:      config.KeyID,
	}, nil
}

// GenerateToken creates a JWT for the user.
func (g *DefaultJWTGenerator) GenerateToken(ctx context.Context, identity UserIdentity) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss":      g.issuer,
		"aud":      g.audience,
		"sub":      base64.RawURLEncoding.EncodeToString(identity.ID),
		"iat":      now.Unix(),
		"exp":      now.Add(g.expiresIn).Unix(),
		"nbf":      now.Unix(),
		"name":     identity.DisplayName,
		"username": identity.Name,
	}

	token := jwt.NewWithClaims(g.method, claims)
	if g.keyID != "" {
		token.Header["kid"] = g.keyID
	}

	signed, err := token.SignedString(g.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken verifies a JWT and returns the claims.
func (g *DefaultJWTGenerator) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != g.method.Alg() {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return g.publicKey, nil
		},
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.audience[0]),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// PublicKey returns the public key for token verification.
func (g *DefaultJWTGenerator) PublicKey() crypto.PublicKey {
	return g.publicKey
}

// Issuer returns the configured issuer.
func (g *DefaultJWTGenerator) Issuer() string {
	return g.issuer
}

// ExpiresIn returns the token expiration duration.
func (g *DefaultJWTGenerator) ExpiresIn() time.Duration {
	return g.expiresIn
}
