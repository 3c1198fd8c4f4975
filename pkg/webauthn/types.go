// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"crypto/x509"
	"encoding/json"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// UserIdentity identifies a relying-party account. The handle is minted
// once, at the start of the user's first registration ceremony, and is
// immutable thereafter.
type UserIdentity struct {
	// Name is the unique, stable account name.
	Name string `json:"name"`

	// DisplayName is the human-friendly name shown by authenticators.
	DisplayName string `json:"displayName"`

	// ID is the opaque user handle, a fixed-length random byte string.
	ID protocol.URLEncodedBase64 `json:"id"`
}

// CredentialRecord is a registered authenticator's public key material.
type CredentialRecord struct {
	// CredentialID is the identifier assigned by the authenticator.
	CredentialID protocol.URLEncodedBase64 `json:"credentialId"`

	// UserHandle is the user handle the credential was registered under.
	UserHandle protocol.URLEncodedBase64 `json:"userHandle"`

	// PublicKeyCOSE is the credential public key in COSE_Key encoding.
	PublicKeyCOSE protocol.URLEncodedBase64 `json:"publicKeyCose"`

	// SignatureCount is the authenticator's signature counter as of the
	// last verified assertion.
	SignatureCount uint32 `json:"signatureCount"`
}

// Attestation carries the trust decision and metadata resolved for an
// authenticator at registration time.
type Attestation struct {
	// Trusted reports whether the attestation chained to a known root.
	Trusted bool `json:"trusted"`

	// Transports lists transports reported by attestation metadata.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// Metadata holds free-form device metadata (vendor, description).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MetadataService resolves attestation trust and device metadata from an
// attestation certificate. Implementations are optional collaborators;
// when absent, attestation is recorded as untrusted.
type MetadataService interface {
	Attestation(cert *x509.Certificate) (*Attestation, error)
}

// Registration is one enrolled credential for a user, plus metadata.
type Registration struct {
	// UserIdentity is the owning account.
	UserIdentity UserIdentity `json:"userIdentity"`

	// Nickname is an optional user-chosen label for the authenticator.
	Nickname string `json:"nickname,omitempty"`

	// Transports are the transport hints observed at registration.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// RegisteredAt is when the credential was registered.
	RegisteredAt time.Time `json:"registeredAt"`

	// Credential is the registered key material.
	Credential CredentialRecord `json:"credential"`

	// Attestation is the attestation trust result, if resolved.
	Attestation *Attestation `json:"attestation,omitempty"`
}

// Username returns the owning account name.
func (r *Registration) Username() string {
	return r.UserIdentity.Name
}

// webauthnCredential converts the record to the verifier library's
// credential type.
func (r *Registration) webauthnCredential() webauthn.Credential {
	return webauthn.Credential{
		ID:        r.Credential.CredentialID,
		PublicKey: r.Credential.PublicKeyCOSE,
		Transport: r.Transports,
		Authenticator: webauthn.Authenticator{
			SignCount: r.Credential.SignatureCount,
		},
	}
}

// CreationOptions is the opaque ceremony challenge produced by the
// verifier for a registration ceremony. PublicKey is returned verbatim
// to the client; Session is replayed into the verifier on finish.
type CreationOptions struct {
	User      UserIdentity                 `json:"user"`
	PublicKey *protocol.CredentialCreation `json:"publicKeyCredentialCreationOptions"`
	Session   *webauthn.SessionData        `json:"-"`
}

// AssertionOptions is the opaque ceremony challenge for an
// authentication ceremony.
type AssertionOptions struct {
	Username  string                        `json:"username,omitempty"`
	PublicKey *protocol.CredentialAssertion `json:"publicKeyCredentialRequestOptions"`
	Session   *webauthn.SessionData         `json:"-"`
}

// RegistrationRequest is a pending registration ceremony, correlated by
// its request ID. It is consumed exactly once on finish.
type RegistrationRequest struct {
	Username        string                    `json:"username"`
	Nickname        string                    `json:"credentialNickname,omitempty"`
	RequestID       protocol.URLEncodedBase64 `json:"requestId"`
	CreationOptions *CreationOptions          `json:"makePublicKeyCredentialOptions"`
	SessionToken    protocol.URLEncodedBase64 `json:"sessionToken,omitempty"`

	startedAt time.Time
}

// AssertionRequest is a pending authentication ceremony.
type AssertionRequest struct {
	RequestID        protocol.URLEncodedBase64 `json:"requestId"`
	AssertionOptions *AssertionOptions         `json:"publicKeyCredentialRequestOptions"`
	Username         string                    `json:"username,omitempty"`

	startedAt time.Time
}

// RegistrationResponse is the client's answer to a registration
// ceremony. Credential is kept raw and parsed by the service.
type RegistrationResponse struct {
	RequestID    protocol.URLEncodedBase64 `json:"requestId"`
	Credential   json.RawMessage           `json:"credential"`
	SessionToken protocol.URLEncodedBase64 `json:"sessionToken,omitempty"`
}

// AssertionResponse is the client's answer to an authentication
// ceremony.
type AssertionResponse struct {
	RequestID  protocol.URLEncodedBase64 `json:"requestId"`
	Credential json.RawMessage           `json:"credential"`
}

// U2FCredentialResponse is the legacy U2F registration payload.
type U2FCredentialResponse struct {
	KeyHandle protocol.URLEncodedBase64 `json:"keyHandle"`

	// PublicKey is the raw device public key, a 65-byte uncompressed
	// EC point.
	PublicKey protocol.URLEncodedBase64 `json:"publicKey"`

	// AttestationCertAndSignature is the DER attestation certificate
	// directly followed by the raw signature bytes.
	AttestationCertAndSignature protocol.URLEncodedBase64 `json:"attestationCertAndSignature"`

	ClientDataJSON protocol.URLEncodedBase64 `json:"clientDataJSON"`
}

// U2FCredential wraps the legacy response payload.
type U2FCredential struct {
	U2FResponse U2FCredentialResponse `json:"u2fResponse"`
}

// U2FRegistrationResponse is the client's answer to a registration
// ceremony completed over the legacy U2F protocol.
type U2FRegistrationResponse struct {
	RequestID    protocol.URLEncodedBase64 `json:"requestId"`
	Credential   U2FCredential             `json:"credential"`
	SessionToken protocol.URLEncodedBase64 `json:"sessionToken,omitempty"`
}

// AttestationCertInfo carries the attestation certificate of a completed
// registration in both DER and human-readable form.
type AttestationCertInfo struct {
	DER  protocol.URLEncodedBase64 `json:"der"`
	Text string                    `json:"text"`
}

// SuccessfulRegistration is the outcome of a completed registration
// ceremony.
type SuccessfulRegistration struct {
	Success            bool                      `json:"success"`
	Request            *RegistrationRequest      `json:"request"`
	Registration       *Registration             `json:"registration"`
	AttestationTrusted bool                      `json:"attestationTrusted"`
	AttestationCert    *AttestationCertInfo      `json:"attestationCert,omitempty"`
	Username           string                    `json:"username"`
	SessionToken       protocol.URLEncodedBase64 `json:"sessionToken"`
	Token              string                    `json:"token,omitempty"`
}

// SuccessfulU2FRegistration is the outcome of a completed legacy U2F
// registration ceremony.
type SuccessfulU2FRegistration struct {
	Success            bool                      `json:"success"`
	Request            *RegistrationRequest      `json:"request"`
	Registration       *Registration             `json:"registration"`
	AttestationTrusted bool                      `json:"attestationTrusted"`
	AttestationCert    *AttestationCertInfo      `json:"attestationCert,omitempty"`
	Username           string                    `json:"username"`
	SessionToken       protocol.URLEncodedBase64 `json:"sessionToken"`
}

// SuccessfulAuthentication is the outcome of a completed authentication
// ceremony.
type SuccessfulAuthentication struct {
	Success       bool                      `json:"success"`
	Request       *AssertionRequest         `json:"request"`
	Registrations []*Registration           `json:"registrations"`
	Username      string                    `json:"username"`
	SessionToken  protocol.URLEncodedBase64 `json:"sessionToken"`
	Warnings      []string                  `json:"warnings,omitempty"`
	Token         string                    `json:"token,omitempty"`
}

// DeregisterResult is the outcome of removing a single credential.
type DeregisterResult struct {
	Success             bool          `json:"success"`
	DroppedRegistration *Registration `json:"droppedRegistration"`
	AccountDeleted      bool          `json:"accountDeleted"`
}

// DeleteAccountResult is the outcome of removing an account and all of
// its registrations.
type DeleteAccountResult struct {
	Success        bool   `json:"success"`
	DeletedAccount string `json:"deletedAccount"`
}

// Rejection is an ordered list of human-readable failure messages
// terminating a ceremony. It is ordinary data, not a panic path; it
// also satisfies error for callers that prefer error plumbing.
type Rejection struct {
	Messages []string `json:"messages"`
}

// Reject builds a Rejection from the given messages.
func Reject(messages ...string) *Rejection {
	return &Rejection{Messages: messages}
}

func (r *Rejection) Error() string {
	if len(r.Messages) == 0 {
		return "ceremony rejected"
	}
	return r.Messages[0]
}
