// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"github.com/go-webauthn/webauthn/protocol"
)

// CredentialStore persists registered credentials, keyed by username.
// It is the credential-repository capability the verifier calls back
// into during ceremonies, plus the mutation surface the service uses.
//
// The unscoped lookups (LookupCredential with an empty user handle,
// LookupAllByCredentialID) scan across all accounts; the verifier is
// responsible for enforcing ownership via the user handle it returns.
type CredentialStore interface {
	// CredentialDescriptorsForUser returns descriptors for all of the
	// user's credentials. Empty for an unknown user.
	CredentialDescriptorsForUser(username string) []protocol.CredentialDescriptor

	// UserHandleForUsername resolves a username to its user handle.
	UserHandleForUsername(username string) ([]byte, bool)

	// UsernameForUserHandle resolves a user handle to its username.
	UsernameForUserHandle(userHandle []byte) (string, bool)

	// LookupCredential finds a credential by ID. A non-empty userHandle
	// scopes the match to that owner; an empty handle scans globally.
	LookupCredential(credentialID, userHandle []byte) (*CredentialRecord, bool)

	// LookupAllByCredentialID returns every record matching the
	// credential ID across all accounts. Empty or singleton for
	// well-behaved clients.
	LookupAllByCredentialID(credentialID []byte) []*CredentialRecord

	// RegistrationsForUser returns all of the user's registrations.
	RegistrationsForUser(username string) []*Registration

	// RegistrationForCredential returns the user's registration with
	// the given credential ID.
	RegistrationForCredential(username string, credentialID []byte) (*Registration, bool)

	// AddRegistration stores a registration under the username. Returns
	// false if an identical credential ID was already registered for
	// that user.
	AddRegistration(username string, reg *Registration) bool

	// RemoveRegistration removes the registration with the given
	// credential ID from the user's set. Returns false if absent.
	RemoveRegistration(username string, credentialID []byte) bool

	// RemoveAllForUser removes the account and all of its registrations
	// as a unit. Returns false if the user did not exist.
	RemoveAllForUser(username string) bool

	// UserExists reports whether the username has any registrations.
	UserExists(username string) bool

	// UpdateSignatureCount replaces the stored signature counter of the
	// (username, credentialID) registration. Returns
	// ErrCredentialNotFound if the pair is not registered.
	UpdateSignatureCount(username string, credentialID []byte, newCount uint32) error
}

// Verifier is the external relying-party verification contract. The
// service treats it as a trusted black box: options produced by the
// Start methods are returned verbatim to the client and replayed into
// the Finish methods together with the decoded client response.
//
// Finish methods report cryptographic rejection as a *VerificationError
// (matching ErrVerificationFailed); any other error is an unexpected
// internal failure.
type Verifier interface {
	StartRegistration(identity UserIdentity, requireResidentKey bool) (*CreationOptions, error)

	FinishRegistration(opts *CreationOptions, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error)

	// StartAssertion produces assertion options. An empty username
	// requests a username-less (discoverable credential) ceremony.
	StartAssertion(username string) (*AssertionOptions, error)

	FinishAssertion(opts *AssertionOptions, response *protocol.ParsedCredentialAssertionData) (*AssertionResult, error)
}

// RegistrationResult is the verifier's view of a successful
// registration ceremony.
type RegistrationResult struct {
	CredentialID       []byte
	PublicKeyCOSE      []byte
	SignatureCount     uint32
	AttestationTrusted bool
	Transports         []protocol.AuthenticatorTransport
	AttestationCertDER []byte
}

// AssertionResult is the verifier's view of a completed assertion
// ceremony. Success false means the assertion was well-formed but
// invalid; cryptographic failures are reported as errors instead.
type AssertionResult struct {
	Success        bool
	Username       string
	UserHandle     []byte
	CredentialID   []byte
	SignatureCount uint32
	Warnings       []string
}
