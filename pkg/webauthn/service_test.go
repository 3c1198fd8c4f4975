// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVerifier satisfies Verifier with canned results so the ceremony
// orchestration can be driven without real authenticator responses.
type fakeVerifier struct {
	startRegistrationErr error
	registrationResult   *RegistrationResult
	registrationErr      error
	startAssertionErr    error
	assertionResult      *AssertionResult
	assertionErr         error

	lastIdentity    UserIdentity
	lastResidentKey bool
	lastAssertUser  string
}

func (f *fakeVerifier) StartRegistration(identity UserIdentity, requireResidentKey bool) (*CreationOptions, error) {
	f.lastIdentity = identity
	f.lastResidentKey = requireResidentKey
	if f.startRegistrationErr != nil {
		return nil, f.startRegistrationErr
	}
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}
	return &CreationOptions{
		User: identity,
		PublicKey: &protocol.CredentialCreation{
			Response: protocol.PublicKeyCredentialCreationOptions{
				Challenge: challenge,
			},
		},
	}, nil
}

func (f *fakeVerifier) FinishRegistration(opts *CreationOptions, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	if f.registrationErr != nil {
		return nil, f.registrationErr
	}
	return f.registrationResult, nil
}

func (f *fakeVerifier) StartAssertion(username string) (*AssertionOptions, error) {
	f.lastAssertUser = username
	if f.startAssertionErr != nil {
		return nil, f.startAssertionErr
	}
	return &AssertionOptions{
		Username:  username,
		PublicKey: &protocol.CredentialAssertion{},
	}, nil
}

func (f *fakeVerifier) FinishAssertion(opts *AssertionOptions, response *protocol.ParsedCredentialAssertionData) (*AssertionResult, error) {
	if f.assertionErr != nil {
		return nil, f.assertionErr
	}
	return f.assertionResult, nil
}

type fakeTokenGenerator struct {
	token string
	err   error
}

func (f *fakeTokenGenerator) GenerateToken(ctx context.Context, identity UserIdentity) (string, error) {
	return f.token, f.err
}

func testServiceConfig() *Config {
	return &Config{
		RPID:          "localhost",
		RPDisplayName: "Test RP",
		RPOrigins:     []string{"https://localhost:8443"},
	}
}

func newTestService(t *testing.T, fake *fakeVerifier) *Service {
	t.Helper()
	return newTestServiceWithConfig(t, fake, testServiceConfig())
}

func newTestServiceWithConfig(t *testing.T, fake *fakeVerifier, config *Config) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:         config,
		Verifier:       fake,
		TokenGenerator: &fakeTokenGenerator{token: "signed-token"},
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return svc
}

// creationResponseBody builds the smallest credential creation response
// the protocol parser accepts.
func creationResponseBody(t *testing.T) json.RawMessage {
	t.Helper()

	coseKey, err := RawKeyToCOSE(make([]byte, 64))
	require.NoError(t, err)

	credentialID := []byte("credential-one")
	authData := make([]byte, 37)
	authData[32] = 0x41 // UP | AT
	authData = append(authData, make([]byte, 16)...) // AAGUID
	authData = append(authData, byte(len(credentialID)>>8), byte(len(credentialID)))
	authData = append(authData, credentialID...)
	authData = append(authData, coseKey...)

	attestationObject, err := ctap2Encoder.Marshal(map[string]interface{}{
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
		"authData": authData,
	})
	require.NoError(t, err)

	clientData := []byte(`{"type":"webauthn.create","challenge":"dGVzdA","origin":"https://localhost:8443"}`)
	body, err := json.Marshal(map[string]interface{}{
		"id":    base64.RawURLEncoding.EncodeToString([]byte("credential-one")),
		"rawId": base64.RawURLEncoding.EncodeToString([]byte("credential-one")),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
			"attestationObject": base64.RawURLEncoding.EncodeToString(attestationObject),
		},
	})
	require.NoError(t, err)
	return body
}

func assertionResponseBody(t *testing.T) json.RawMessage {
	t.Helper()

	clientData := []byte(`{"type":"webauthn.get","challenge":"dGVzdA","origin":"https://localhost:8443"}`)
	body, err := json.Marshal(map[string]interface{}{
		"id":    base64.RawURLEncoding.EncodeToString([]byte("credential-one")),
		"rawId": base64.RawURLEncoding.EncodeToString([]byte("credential-one")),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientData),
			"authenticatorData": base64.RawURLEncoding.EncodeToString(make([]byte, 37)),
			"signature":         base64.RawURLEncoding.EncodeToString([]byte("sig")),
		},
	})
	require.NoError(t, err)
	return body
}

func registrationMessage(t *testing.T, requestID []byte) []byte {
	t.Helper()
	message, err := json.Marshal(RegistrationResponse{
		RequestID:  requestID,
		Credential: creationResponseBody(t),
	})
	require.NoError(t, err)
	return message
}

func assertionMessage(t *testing.T, requestID []byte) []byte {
	t.Helper()
	message, err := json.Marshal(AssertionResponse{
		RequestID:  requestID,
		Credential: assertionResponseBody(t),
	})
	require.NoError(t, err)
	return message
}

func TestStartRegistrationNewUser(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{
		Username:           "alice",
		DisplayName:        "Alice",
		Nickname:           "yubikey",
		RequireResidentKey: true,
	})
	require.Nil(t, rejection)
	require.NotNil(t, request)

	assert.Equal(t, "alice", request.Username)
	assert.Equal(t, "yubikey", request.Nickname)
	assert.Len(t, []byte(request.RequestID), 32)
	assert.Len(t, []byte(request.SessionToken), 32)
	assert.Equal(t, "alice", fake.lastIdentity.Name)
	assert.Equal(t, "Alice", fake.lastIdentity.DisplayName)
	assert.Len(t, []byte(fake.lastIdentity.ID), 32)
	assert.True(t, fake.lastResidentKey)
}

func TestStartRegistrationMintsFreshHandlePerAttempt(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(t, fake)

	first, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)
	second, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	// The identity is only persisted by a successful registration, so
	// two starts for an unregistered name get independent handles.
	assert.NotEqual(t,
		[]byte(first.CreationOptions.User.ID),
		[]byte(second.CreationOptions.User.ID))
}

func TestStartRegistrationExistingUserRequiresSession(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(t, fake)

	handle := []byte("handle-alice-handle-alice-haha32")
	svc.creds.AddRegistration("alice", testRegistration("alice", handle, []byte("credential-one")))

	_, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.NotNil(t, rejection)
	assert.Equal(t, []string{`The username "alice" is already registered.`}, rejection.Messages)

	token, err := svc.sessions.CreateSession(handle)
	require.NoError(t, err)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{
		Username:     "alice",
		DisplayName:  "Alice",
		SessionToken: token,
	})
	require.Nil(t, rejection)
	require.NotNil(t, request)
	assert.Equal(t, handle, []byte(fake.lastIdentity.ID))
}

func TestFinishRegistration(t *testing.T) {
	fake := &fakeVerifier{
		registrationResult: &RegistrationResult{
			CredentialID:   []byte("credential-one"),
			PublicKeyCOSE:  []byte{0xa5, 0x01, 0x02},
			SignatureCount: 7,
			Transports:     []protocol.AuthenticatorTransport{protocol.USB},
		},
	}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	outcome, rejection := svc.FinishRegistration(context.Background(), registrationMessage(t, request.RequestID))
	require.Nil(t, rejection)
	require.NotNil(t, outcome)

	assert.True(t, outcome.Success)
	assert.Equal(t, "alice", outcome.Username)
	assert.Equal(t, []byte("credential-one"), []byte(outcome.Registration.Credential.CredentialID))
	assert.Equal(t, uint32(7), outcome.Registration.Credential.SignatureCount)
	assert.NotEmpty(t, []byte(outcome.SessionToken))
	assert.Equal(t, "signed-token", outcome.Token)
	assert.True(t, svc.creds.UserExists("alice"))

	stored, ok := svc.creds.RegistrationForCredential("alice", []byte("credential-one"))
	require.True(t, ok)
	assert.Equal(t, []byte(request.CreationOptions.User.ID), []byte(stored.Credential.UserHandle))
}

func TestFinishRegistrationRequestConsumedOnce(t *testing.T) {
	fake := &fakeVerifier{registrationResult: &RegistrationResult{CredentialID: []byte("credential-one")}}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	message := registrationMessage(t, request.RequestID)
	_, rejection = svc.FinishRegistration(context.Background(), message)
	require.Nil(t, rejection)

	_, rejection = svc.FinishRegistration(context.Background(), message)
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Registration failed!", "No such registration in progress."}, rejection.Messages)
}

func TestFinishRegistrationUnknownRequest(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	_, rejection := svc.FinishRegistration(context.Background(), registrationMessage(t, []byte("no-such-request")))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Registration failed!", "No such registration in progress."}, rejection.Messages)
}

func TestFinishRegistrationMalformedMessage(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	_, rejection := svc.FinishRegistration(context.Background(), []byte(`{"requestId":`))
	require.NotNil(t, rejection)
	require.Len(t, rejection.Messages, 3)
	assert.Equal(t, "Registration failed!", rejection.Messages[0])
	assert.Equal(t, "Failed to decode response object.", rejection.Messages[1])
}

func TestFinishRegistrationUndecodableCredential(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	message, err := json.Marshal(RegistrationResponse{
		RequestID:  request.RequestID,
		Credential: json.RawMessage(`{"id":""}`),
	})
	require.NoError(t, err)

	_, rejection = svc.FinishRegistration(context.Background(), message)
	require.NotNil(t, rejection)
	require.Len(t, rejection.Messages, 3)
	assert.Equal(t, "Registration failed!", rejection.Messages[0])
	assert.Equal(t, "Failed to decode response object.", rejection.Messages[1])
}

func TestFinishRegistrationRetryAfterBadCredential(t *testing.T) {
	fake := &fakeVerifier{registrationResult: &RegistrationResult{CredentialID: []byte("credential-one")}}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	bad, err := json.Marshal(RegistrationResponse{
		RequestID:  request.RequestID,
		Credential: json.RawMessage(`{"id":""}`),
	})
	require.NoError(t, err)

	_, rejection = svc.FinishRegistration(context.Background(), bad)
	require.NotNil(t, rejection)
	assert.Equal(t, "Failed to decode response object.", rejection.Messages[1])

	// A decode failure must not consume the pending ceremony.
	outcome, rejection := svc.FinishRegistration(context.Background(), registrationMessage(t, request.RequestID))
	require.Nil(t, rejection)
	assert.True(t, outcome.Success)
}

func TestFinishRegistrationDuplicateCredential(t *testing.T) {
	fake := &fakeVerifier{registrationResult: &RegistrationResult{CredentialID: []byte("credential-one")}}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)
	outcome, rejection := svc.FinishRegistration(context.Background(), registrationMessage(t, request.RequestID))
	require.Nil(t, rejection)

	request, rejection = svc.StartRegistration(context.Background(), StartRegistrationParams{
		Username:     "alice",
		DisplayName:  "Alice",
		SessionToken: outcome.SessionToken,
	})
	require.Nil(t, rejection)

	_, rejection = svc.FinishRegistration(context.Background(), registrationMessage(t, request.RequestID))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{
		"Registration failed!",
		"Credential ID already registered: " + base64.RawURLEncoding.EncodeToString([]byte("credential-one")),
	}, rejection.Messages)
	assert.Len(t, svc.creds.RegistrationsForUser("alice"), 1)
}

func TestFinishRegistrationVerifierRejection(t *testing.T) {
	fake := &fakeVerifier{registrationErr: &VerificationError{Reason: "Attestation signature invalid."}}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	_, rejection = svc.FinishRegistration(context.Background(), registrationMessage(t, request.RequestID))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Registration failed!", "Attestation signature invalid."}, rejection.Messages)
}

func TestFinishRegistrationUnexpectedError(t *testing.T) {
	fake := &fakeVerifier{registrationErr: errors.New("boom")}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	_, rejection = svc.FinishRegistration(context.Background(), registrationMessage(t, request.RequestID))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Registration failed unexpectedly; this is likely a bug.", "boom"}, rejection.Messages)
}

func TestFinishRegistrationReRegistrationWithDeadSession(t *testing.T) {
	fake := &fakeVerifier{registrationResult: &RegistrationResult{CredentialID: []byte("credential-two")}}
	config := testServiceConfig()
	config.SessionCacheTTL = time.Millisecond
	svc := newTestServiceWithConfig(t, fake, config)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	// Another client registers the name while this ceremony is pending,
	// and the session minted at start expires.
	svc.creds.AddRegistration("alice", testRegistration("alice", []byte("other-handle"), []byte("credential-one")))
	time.Sleep(10 * time.Millisecond)

	_, rejection = svc.FinishRegistration(context.Background(), registrationMessage(t, request.RequestID))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Registration failed!", "User alice already exists"}, rejection.Messages)
}

func TestFinishU2FRegistration(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	fixture := newU2FFixture(t, request.CreationOptions.PublicKey.Response.Challenge)
	message, err := json.Marshal(U2FRegistrationResponse{
		RequestID:  request.RequestID,
		Credential: U2FCredential{U2FResponse: fixture.response},
	})
	require.NoError(t, err)

	outcome, rejection := svc.FinishU2FRegistration(context.Background(), message)
	require.Nil(t, rejection)
	require.NotNil(t, outcome)

	assert.True(t, outcome.Success)
	assert.Equal(t, "alice", outcome.Username)
	assert.Equal(t, []byte(fixture.response.KeyHandle), []byte(outcome.Registration.Credential.CredentialID))
	assert.Equal(t, uint32(0), outcome.Registration.Credential.SignatureCount)
	require.NotNil(t, outcome.AttestationCert)
	assert.Contains(t, outcome.AttestationCert.Text, "U2F Test Attestation")

	point, err := parseU2FPoint(outcome.Registration.Credential.PublicKeyCOSE)
	require.NoError(t, err)
	assert.Equal(t, []byte(fixture.response.PublicKey[1:]), point)
	assert.True(t, svc.creds.UserExists("alice"))
}

func TestFinishU2FRegistrationBadSignature(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(t, fake)

	request, rejection := svc.StartRegistration(context.Background(), StartRegistrationParams{Username: "alice", DisplayName: "Alice"})
	require.Nil(t, rejection)

	fixture := newU2FFixture(t, request.CreationOptions.PublicKey.Response.Challenge)
	fixture.response.PublicKey[10] ^= 0xff
	message, err := json.Marshal(U2FRegistrationResponse{
		RequestID:  request.RequestID,
		Credential: U2FCredential{U2FResponse: fixture.response},
	})
	require.NoError(t, err)

	_, rejection = svc.FinishU2FRegistration(context.Background(), message)
	require.NotNil(t, rejection)
	require.Len(t, rejection.Messages, 2)
	assert.Equal(t, "Failed to verify signature.", rejection.Messages[0])
	assert.False(t, svc.creds.UserExists("alice"))
}

func TestFinishU2FRegistrationUnknownRequest(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	message, err := json.Marshal(U2FRegistrationResponse{RequestID: []byte("no-such-request")})
	require.NoError(t, err)

	_, rejection := svc.FinishU2FRegistration(context.Background(), message)
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Registration failed!", "No such registration in progress."}, rejection.Messages)
}

func TestStartAuthenticationUnknownUser(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	_, rejection := svc.StartAuthentication(context.Background(), "bob")
	require.NotNil(t, rejection)
	assert.Equal(t, []string{`The username "bob" is not registered.`}, rejection.Messages)
}

func TestStartAuthenticationUsernameless(t *testing.T) {
	fake := &fakeVerifier{}
	svc := newTestService(t, fake)

	request, rejection := svc.StartAuthentication(context.Background(), "")
	require.Nil(t, rejection)
	require.NotNil(t, request)
	assert.Len(t, []byte(request.RequestID), 32)
	assert.Empty(t, fake.lastAssertUser)
}

func TestFinishAuthentication(t *testing.T) {
	handle := []byte("handle-alice-handle-alice-haha32")
	fake := &fakeVerifier{
		assertionResult: &AssertionResult{
			Success:        true,
			Username:       "alice",
			UserHandle:     handle,
			CredentialID:   []byte("credential-one"),
			SignatureCount: 9,
			Warnings:       []string{"Signature counter did not increase. This may be a sign of a compromised authenticator."},
		},
	}
	svc := newTestService(t, fake)
	svc.creds.AddRegistration("alice", testRegistration("alice", handle, []byte("credential-one")))

	request, rejection := svc.StartAuthentication(context.Background(), "alice")
	require.Nil(t, rejection)

	outcome, rejection := svc.FinishAuthentication(context.Background(), assertionMessage(t, request.RequestID))
	require.Nil(t, rejection)
	require.NotNil(t, outcome)

	assert.True(t, outcome.Success)
	assert.Equal(t, "alice", outcome.Username)
	assert.Len(t, outcome.Registrations, 1)
	assert.NotEmpty(t, []byte(outcome.SessionToken))
	assert.Equal(t, "signed-token", outcome.Token)
	assert.Equal(t, fake.assertionResult.Warnings, outcome.Warnings)

	stored, ok := svc.creds.RegistrationForCredential("alice", []byte("credential-one"))
	require.True(t, ok)
	assert.Equal(t, uint32(9), stored.Credential.SignatureCount)
}

func TestFinishAuthenticationRequestConsumedOnce(t *testing.T) {
	fake := &fakeVerifier{
		assertionResult: &AssertionResult{Success: true, Username: "alice", UserHandle: []byte("h"), CredentialID: []byte("credential-one")},
	}
	svc := newTestService(t, fake)

	request, rejection := svc.StartAuthentication(context.Background(), "")
	require.Nil(t, rejection)

	message := assertionMessage(t, request.RequestID)
	_, rejection = svc.FinishAuthentication(context.Background(), message)
	require.Nil(t, rejection)

	_, rejection = svc.FinishAuthentication(context.Background(), message)
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Assertion failed!", "No such assertion in progress."}, rejection.Messages)
}

func TestFinishAuthenticationRetryAfterBadCredential(t *testing.T) {
	fake := &fakeVerifier{
		assertionResult: &AssertionResult{Success: true, Username: "alice", UserHandle: []byte("h"), CredentialID: []byte("credential-one")},
	}
	svc := newTestService(t, fake)

	request, rejection := svc.StartAuthentication(context.Background(), "")
	require.Nil(t, rejection)

	bad, err := json.Marshal(AssertionResponse{
		RequestID:  request.RequestID,
		Credential: json.RawMessage(`{"id":""}`),
	})
	require.NoError(t, err)

	_, rejection = svc.FinishAuthentication(context.Background(), bad)
	require.NotNil(t, rejection)
	assert.Equal(t, "Failed to decode response object.", rejection.Messages[1])

	// A decode failure must not consume the pending ceremony.
	outcome, rejection := svc.FinishAuthentication(context.Background(), assertionMessage(t, request.RequestID))
	require.Nil(t, rejection)
	assert.True(t, outcome.Success)
}

func TestFinishAuthenticationUnknownRequest(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	_, rejection := svc.FinishAuthentication(context.Background(), assertionMessage(t, []byte("no-such-request")))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Assertion failed!", "No such assertion in progress."}, rejection.Messages)
}

func TestFinishAuthenticationInvalidAssertion(t *testing.T) {
	fake := &fakeVerifier{assertionResult: &AssertionResult{Success: false}}
	svc := newTestService(t, fake)

	request, rejection := svc.StartAuthentication(context.Background(), "")
	require.Nil(t, rejection)

	_, rejection = svc.FinishAuthentication(context.Background(), assertionMessage(t, request.RequestID))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Assertion failed: Invalid assertion."}, rejection.Messages)
}

func TestFinishAuthenticationVerifierRejection(t *testing.T) {
	fake := &fakeVerifier{assertionErr: &VerificationError{Reason: "Signature invalid."}}
	svc := newTestService(t, fake)

	request, rejection := svc.StartAuthentication(context.Background(), "")
	require.Nil(t, rejection)

	_, rejection = svc.FinishAuthentication(context.Background(), assertionMessage(t, request.RequestID))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Assertion failed!", "Signature invalid."}, rejection.Messages)
}

func TestFinishAuthenticationUnexpectedError(t *testing.T) {
	fake := &fakeVerifier{assertionErr: errors.New("boom")}
	svc := newTestService(t, fake)

	request, rejection := svc.StartAuthentication(context.Background(), "")
	require.Nil(t, rejection)

	_, rejection = svc.FinishAuthentication(context.Background(), assertionMessage(t, request.RequestID))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Assertion failed unexpectedly; this is likely a bug.", "boom"}, rejection.Messages)
}

func TestFinishAuthenticationCounterUpdateBestEffort(t *testing.T) {
	// The asserted credential is missing from the store, so persisting
	// the counter fails; the authentication still succeeds.
	fake := &fakeVerifier{
		assertionResult: &AssertionResult{Success: true, Username: "ghost", UserHandle: []byte("h"), CredentialID: []byte("gone")},
	}
	svc := newTestService(t, fake)

	request, rejection := svc.StartAuthentication(context.Background(), "")
	require.Nil(t, rejection)

	outcome, rejection := svc.FinishAuthentication(context.Background(), assertionMessage(t, request.RequestID))
	require.Nil(t, rejection)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Success)
}

func TestDeregisterCredential(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	handle := []byte("handle-alice-handle-alice-haha32")
	svc.creds.AddRegistration("alice", testRegistration("alice", handle, []byte("credential-one")))
	svc.creds.AddRegistration("alice", testRegistration("alice", handle, []byte("credential-two")))

	token, err := svc.sessions.CreateSession(handle)
	require.NoError(t, err)

	result, rejection := svc.DeregisterCredential(context.Background(), token, []byte("credential-one"))
	require.Nil(t, rejection)
	assert.True(t, result.Success)
	assert.False(t, result.AccountDeleted)
	assert.Equal(t, []byte("credential-one"), []byte(result.DroppedRegistration.Credential.CredentialID))

	result, rejection = svc.DeregisterCredential(context.Background(), token, []byte("credential-two"))
	require.Nil(t, rejection)
	assert.True(t, result.AccountDeleted)
	assert.False(t, svc.creds.UserExists("alice"))
}

func TestDeregisterCredentialRejections(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})

	handle := []byte("handle-alice-handle-alice-haha32")
	svc.creds.AddRegistration("alice", testRegistration("alice", handle, []byte("credential-one")))
	token, err := svc.sessions.CreateSession(handle)
	require.NoError(t, err)

	_, rejection := svc.DeregisterCredential(context.Background(), token, nil)
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Credential ID must not be empty."}, rejection.Messages)

	_, rejection = svc.DeregisterCredential(context.Background(), []byte("bogus"), []byte("credential-one"))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Invalid session"}, rejection.Messages)

	orphanToken, err := svc.sessions.CreateSession([]byte("no-such-user-handle"))
	require.NoError(t, err)
	_, rejection = svc.DeregisterCredential(context.Background(), orphanToken, []byte("credential-one"))
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Invalid user handle"}, rejection.Messages)

	unknown := []byte("credential-unknown")
	_, rejection = svc.DeregisterCredential(context.Background(), token, unknown)
	require.NotNil(t, rejection)
	assert.Equal(t, []string{
		"Credential ID not registered: " + base64.RawURLEncoding.EncodeToString(unknown),
	}, rejection.Messages)
}

func TestDeleteAccount(t *testing.T) {
	svc := newTestService(t, &fakeVerifier{})
	svc.creds.AddRegistration("alice", testRegistration("alice", []byte("h"), []byte("credential-one")))

	result, rejection := svc.DeleteAccount(context.Background(), "alice")
	require.Nil(t, rejection)
	assert.True(t, result.Success)
	assert.Equal(t, "alice", result.DeletedAccount)
	assert.False(t, svc.creds.UserExists("alice"))

	_, rejection = svc.DeleteAccount(context.Background(), "alice")
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Username not registered: alice"}, rejection.Messages)

	_, rejection = svc.DeleteAccount(context.Background(), "")
	require.NotNil(t, rejection)
	assert.Equal(t, []string{"Username must not be empty."}, rejection.Messages)
}
