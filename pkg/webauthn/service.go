// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// Ceremony-ending failure messages. The lists returned to clients are
// ordered and stable; tooling on the client side matches on them.
const (
	msgRegistrationFailed           = "Registration failed!"
	msgRegistrationFailedUnexpected = "Registration failed unexpectedly; this is likely a bug."
	msgAssertionFailed              = "Assertion failed!"
	msgAssertionFailedUnexpected    = "Assertion failed unexpectedly; this is likely a bug."
	msgAssertionInvalid             = "Assertion failed: Invalid assertion."
	msgDecodeFailed                 = "Failed to decode response object."
	msgNoSuchRegistration           = "No such registration in progress."
	msgNoSuchAssertion              = "No such assertion in progress."
	msgU2FVerifyFailed              = "Failed to verify signature."
	msgInvalidSession               = "Invalid session"
	msgInvalidUserHandle            = "Invalid user handle"
)

// Service orchestrates registration and authentication ceremonies: it
// issues challenges, correlates asynchronous client responses back to
// the pending ceremony that produced them, binds results to sessions,
// and persists registered credentials.
//
// All ceremony-ending failures are returned as a *Rejection carrying an
// ordered message list; no error crosses the service boundary.
type Service struct {
	config           *Config
	verifier         Verifier
	creds            CredentialStore
	sessions         *SessionManager
	registerRequests *requestCache[*RegistrationRequest]
	assertRequests   *requestCache[*AssertionRequest]
	metadata         MetadataService // optional
	tokens           TokenGenerator  // optional
	metrics          *Metrics        // optional
	logger           *slog.Logger
}

// ServiceParams contains dependencies for creating a Service.
type ServiceParams struct {
	// Config is the ceremony configuration (required).
	Config *Config

	// Verifier is the relying-party verification library (optional;
	// defaults to a RelyingParty over the credential store).
	Verifier Verifier

	// CredentialStore is the credential persistence layer (optional;
	// defaults to a MemoryCredentialStore sized from Config).
	CredentialStore CredentialStore

	// MetadataService resolves attestation trust (optional).
	MetadataService MetadataService

	// TokenGenerator mints post-ceremony tokens (optional).
	TokenGenerator TokenGenerator

	// Metrics records ceremony outcomes (optional).
	Metrics *Metrics

	// Logger is the structured logger (optional; defaults to
	// slog.Default).
	Logger *slog.Logger
}

// NewService creates a ceremony service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	creds := params.CredentialStore
	if creds == nil {
		creds = NewMemoryCredentialStore(params.Config.CredentialCacheSize, params.Config.CredentialCacheTTL)
	}

	verifier := params.Verifier
	if verifier == nil {
		rp, err := NewRelyingParty(params.Config, creds, params.MetadataService)
		if err != nil {
			return nil, err
		}
		verifier = rp
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:           params.Config,
		verifier:         verifier,
		creds:            creds,
		sessions:         NewSessionManager(params.Config.SessionCacheSize, params.Config.SessionCacheTTL),
		registerRequests: newRequestCache[*RegistrationRequest](params.Config.RequestCacheSize, params.Config.RequestCacheTTL),
		assertRequests:   newRequestCache[*AssertionRequest](params.Config.RequestCacheSize, params.Config.RequestCacheTTL),
		metadata:         params.MetadataService,
		tokens:           params.TokenGenerator,
		metrics:          params.Metrics,
		logger:           logger,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Sessions returns the session manager.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// StartRegistrationParams are the inputs to StartRegistration.
type StartRegistrationParams struct {
	Username           string
	DisplayName        string
	Nickname           string
	RequireResidentKey bool
	SessionToken       []byte
}

// StartRegistration begins a registration ceremony. Registering an
// additional credential for an existing user requires a session token
// resolving to that user's handle; new users always pass.
func (s *Service) StartRegistration(ctx context.Context, params StartRegistrationParams) (*RegistrationRequest, *Rejection) {
	identity, existing := s.identityForRegistration(params.Username, params.DisplayName)
	if identity == nil {
		s.logger.Error("failed to mint user handle", "username", params.Username)
		return nil, Reject(msgRegistrationFailedUnexpected, "failed to generate user handle")
	}

	if existing && !s.sessions.BelongsTo(identity.ID, params.SessionToken) {
		s.count(CeremonyRegistration, StatusRejected)
		return nil, Reject(fmt.Sprintf("The username %q is already registered.", params.Username))
	}

	options, err := s.verifier.StartRegistration(*identity, params.RequireResidentKey)
	if err != nil {
		s.logger.Error("verifier failed to start registration", "username", params.Username, "error", err)
		s.count(CeremonyRegistration, StatusError)
		return nil, Reject(msgRegistrationFailedUnexpected, err.Error())
	}

	requestID, err := generateRandom(tokenLength)
	if err != nil {
		return nil, Reject(msgRegistrationFailedUnexpected, err.Error())
	}
	sessionToken, err := s.sessions.CreateSession(identity.ID)
	if err != nil {
		return nil, Reject(msgRegistrationFailedUnexpected, err.Error())
	}

	request := &RegistrationRequest{
		Username:        params.Username,
		Nickname:        params.Nickname,
		RequestID:       requestID,
		CreationOptions: options,
		SessionToken:    sessionToken,
		startedAt:       time.Now(),
	}
	s.registerRequests.Put(requestID, request)

	s.logger.Debug("registration started", "username", params.Username)
	s.count(CeremonyRegistration, StatusStarted)
	return request, nil
}

// FinishRegistration completes a registration ceremony from the raw
// response message.
func (s *Service) FinishRegistration(ctx context.Context, message []byte) (*SuccessfulRegistration, *Rejection) {
	var response RegistrationResponse
	if err := json.Unmarshal(message, &response); err != nil {
		s.count(CeremonyRegistration, StatusRejected)
		return nil, Reject(msgRegistrationFailed, msgDecodeFailed, err.Error())
	}

	// The pending request is consumed only once the whole message
	// decodes; a malformed response leaves the ceremony retryable.
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response.Credential))
	if err != nil {
		s.count(CeremonyRegistration, StatusRejected)
		return nil, Reject(msgRegistrationFailed, msgDecodeFailed, err.Error())
	}

	request, ok := s.registerRequests.Take(response.RequestID)
	if !ok {
		s.count(CeremonyRegistration, StatusRejected)
		return nil, Reject(msgRegistrationFailed, msgNoSuchRegistration)
	}

	result, err := s.verifier.FinishRegistration(request.CreationOptions, parsed)
	if err != nil {
		if IsVerificationFailed(err) {
			s.count(CeremonyRegistration, StatusRejected)
			return nil, Reject(msgRegistrationFailed, verificationDetail(err))
		}
		s.logger.Error("registration finish failed unexpectedly", "username", request.Username, "error", err)
		s.count(CeremonyRegistration, StatusError)
		return nil, Reject(msgRegistrationFailedUnexpected, err.Error())
	}

	identity := request.CreationOptions.User
	if rejection := s.authorizeReRegistration(request, identity); rejection != nil {
		s.count(CeremonyRegistration, StatusRejected)
		return nil, rejection
	}

	registration := &Registration{
		UserIdentity: identity,
		Nickname:     request.Nickname,
		Transports:   result.Transports,
		RegisteredAt: time.Now().UTC(),
		Credential: CredentialRecord{
			CredentialID:   result.CredentialID,
			UserHandle:     identity.ID,
			PublicKeyCOSE:  result.PublicKeyCOSE,
			SignatureCount: result.SignatureCount,
		},
	}
	if att := s.resolveAttestation(result.AttestationCertDER, result.AttestationTrusted); att != nil {
		registration.Attestation = att
	}
	if !s.creds.AddRegistration(request.Username, registration) {
		s.count(CeremonyRegistration, StatusRejected)
		return nil, Reject(msgRegistrationFailed, fmt.Sprintf("Credential ID already registered: %s",
			base64.RawURLEncoding.EncodeToString(result.CredentialID)))
	}

	sessionToken, err := s.sessions.CreateSession(identity.ID)
	if err != nil {
		return nil, Reject(msgRegistrationFailedUnexpected, err.Error())
	}

	outcome := &SuccessfulRegistration{
		Success:            true,
		Request:            request,
		Registration:       registration,
		AttestationTrusted: result.AttestationTrusted,
		AttestationCert:    attestationCertInfo(result.AttestationCertDER),
		Username:           request.Username,
		SessionToken:       sessionToken,
	}
	outcome.Token = s.mintToken(ctx, identity)

	s.logger.Debug("registration finished", "username", request.Username)
	s.count(CeremonyRegistration, StatusSucceeded)
	s.observe(CeremonyRegistration, request.startedAt)
	return outcome, nil
}

// FinishU2FRegistration completes a registration ceremony answered over
// the legacy U2F protocol. Verification runs against the configured app
// id; the raw device key is converted to its canonical COSE encoding
// before storage.
func (s *Service) FinishU2FRegistration(ctx context.Context, message []byte) (*SuccessfulU2FRegistration, *Rejection) {
	var response U2FRegistrationResponse
	if err := json.Unmarshal(message, &response); err != nil {
		s.count(CeremonyU2FRegistration, StatusRejected)
		return nil, Reject(msgRegistrationFailed, msgDecodeFailed, err.Error())
	}

	request, ok := s.registerRequests.Take(response.RequestID)
	if !ok {
		s.count(CeremonyU2FRegistration, StatusRejected)
		return nil, Reject(msgRegistrationFailed, msgNoSuchRegistration)
	}

	u2f := response.Credential.U2FResponse
	if err := verifyU2FRegistration(s.config.AppID, request, &u2f); err != nil {
		s.count(CeremonyU2FRegistration, StatusRejected)
		return nil, Reject(msgU2FVerifyFailed, err.Error())
	}

	coseKey, err := RawKeyToCOSE(u2f.PublicKey)
	if err != nil {
		s.count(CeremonyU2FRegistration, StatusRejected)
		return nil, Reject(msgU2FVerifyFailed, err.Error())
	}

	identity := request.CreationOptions.User
	registration := &Registration{
		UserIdentity: identity,
		Nickname:     request.Nickname,
		RegisteredAt: time.Now().UTC(),
		Credential: CredentialRecord{
			CredentialID:   u2f.KeyHandle,
			UserHandle:     identity.ID,
			PublicKeyCOSE:  coseKey,
			SignatureCount: 0,
		},
	}

	var certDER []byte
	if cert, _, certErr := splitCertAndSignature(u2f.AttestationCertAndSignature); certErr == nil {
		certDER = cert.Raw
		if s.metadata != nil {
			if att, attErr := s.metadata.Attestation(cert); attErr == nil && att != nil {
				registration.Attestation = att
			}
		}
	}
	if !s.creds.AddRegistration(request.Username, registration) {
		s.count(CeremonyU2FRegistration, StatusRejected)
		return nil, Reject(msgRegistrationFailed, fmt.Sprintf("Credential ID already registered: %s",
			base64.RawURLEncoding.EncodeToString(u2f.KeyHandle)))
	}

	sessionToken, err := s.sessions.CreateSession(identity.ID)
	if err != nil {
		return nil, Reject(msgRegistrationFailedUnexpected, err.Error())
	}

	trusted := registration.Attestation != nil && registration.Attestation.Trusted
	outcome := &SuccessfulU2FRegistration{
		Success:            true,
		Request:            request,
		Registration:       registration,
		AttestationTrusted: trusted,
		AttestationCert:    attestationCertInfo(certDER),
		Username:           request.Username,
		SessionToken:       sessionToken,
	}

	s.logger.Debug("u2f registration finished", "username", request.Username)
	s.count(CeremonyU2FRegistration, StatusSucceeded)
	s.observe(CeremonyU2FRegistration, request.startedAt)
	return outcome, nil
}

// StartAuthentication begins an authentication ceremony. An empty
// username starts a username-less ceremony for discoverable
// credentials.
func (s *Service) StartAuthentication(ctx context.Context, username string) (*AssertionRequest, *Rejection) {
	if username != "" && !s.creds.UserExists(username) {
		s.count(CeremonyAuthentication, StatusRejected)
		return nil, Reject(fmt.Sprintf("The username %q is not registered.", username))
	}

	options, err := s.verifier.StartAssertion(username)
	if err != nil {
		s.logger.Error("verifier failed to start assertion", "username", username, "error", err)
		s.count(CeremonyAuthentication, StatusError)
		return nil, Reject(msgAssertionFailedUnexpected, err.Error())
	}

	requestID, err := generateRandom(tokenLength)
	if err != nil {
		return nil, Reject(msgAssertionFailedUnexpected, err.Error())
	}

	request := &AssertionRequest{
		RequestID:        requestID,
		AssertionOptions: options,
		Username:         username,
		startedAt:        time.Now(),
	}
	s.assertRequests.Put(requestID, request)

	s.logger.Debug("authentication started", "username", username)
	s.count(CeremonyAuthentication, StatusStarted)
	return request, nil
}

// FinishAuthentication completes an authentication ceremony from the
// raw response message. A failed-but-well-formed assertion yields a
// deliberately generic rejection; verifier detail is not leaked.
func (s *Service) FinishAuthentication(ctx context.Context, message []byte) (*SuccessfulAuthentication, *Rejection) {
	var response AssertionResponse
	if err := json.Unmarshal(message, &response); err != nil {
		s.count(CeremonyAuthentication, StatusRejected)
		return nil, Reject(msgAssertionFailed, msgDecodeFailed, err.Error())
	}

	// The pending request is consumed only once the whole message
	// decodes; a malformed response leaves the ceremony retryable.
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response.Credential))
	if err != nil {
		s.count(CeremonyAuthentication, StatusRejected)
		return nil, Reject(msgAssertionFailed, msgDecodeFailed, err.Error())
	}

	request, ok := s.assertRequests.Take(response.RequestID)
	if !ok {
		s.count(CeremonyAuthentication, StatusRejected)
		return nil, Reject(msgAssertionFailed, msgNoSuchAssertion)
	}

	result, err := s.verifier.FinishAssertion(request.AssertionOptions, parsed)
	if err != nil {
		if IsVerificationFailed(err) {
			s.count(CeremonyAuthentication, StatusRejected)
			return nil, Reject(msgAssertionFailed, verificationDetail(err))
		}
		s.logger.Error("assertion finish failed unexpectedly", "username", request.Username, "error", err)
		s.count(CeremonyAuthentication, StatusError)
		return nil, Reject(msgAssertionFailedUnexpected, err.Error())
	}
	if !result.Success {
		s.count(CeremonyAuthentication, StatusRejected)
		return nil, Reject(msgAssertionInvalid)
	}

	// Best effort: authentication already succeeded, a counter that
	// cannot be persisted is logged, not propagated.
	if err := s.creds.UpdateSignatureCount(result.Username, result.CredentialID, result.SignatureCount); err != nil {
		s.logger.Error("failed to update signature count",
			"username", result.Username,
			"credentialId", base64.RawURLEncoding.EncodeToString(result.CredentialID),
			"error", err)
	}

	sessionToken, err := s.sessions.CreateSession(result.UserHandle)
	if err != nil {
		return nil, Reject(msgAssertionFailedUnexpected, err.Error())
	}

	outcome := &SuccessfulAuthentication{
		Success:       true,
		Request:       request,
		Registrations: s.creds.RegistrationsForUser(result.Username),
		Username:      result.Username,
		SessionToken:  sessionToken,
		Warnings:      result.Warnings,
	}
	outcome.Token = s.mintToken(ctx, UserIdentity{Name: result.Username, ID: result.UserHandle})

	s.logger.Debug("authentication finished", "username", result.Username)
	s.count(CeremonyAuthentication, StatusSucceeded)
	s.observe(CeremonyAuthentication, request.startedAt)
	return outcome, nil
}

// DeregisterCredential removes a single credential, authorized by the
// session token.
func (s *Service) DeregisterCredential(ctx context.Context, sessionToken, credentialID []byte) (*DeregisterResult, *Rejection) {
	if len(credentialID) == 0 {
		return nil, Reject("Credential ID must not be empty.")
	}

	userHandle, ok := s.sessions.ResolveSession(sessionToken)
	if !ok {
		return nil, Reject(msgInvalidSession)
	}

	username, ok := s.creds.UsernameForUserHandle(userHandle)
	if !ok {
		return nil, Reject(msgInvalidUserHandle)
	}

	registration, ok := s.creds.RegistrationForCredential(username, credentialID)
	if !ok {
		return nil, Reject(fmt.Sprintf("Credential ID not registered: %s",
			base64.RawURLEncoding.EncodeToString(credentialID)))
	}

	s.creds.RemoveRegistration(username, credentialID)

	s.logger.Debug("credential deregistered", "username", username)
	return &DeregisterResult{
		Success:             true,
		DroppedRegistration: registration,
		AccountDeleted:      !s.creds.UserExists(username),
	}, nil
}

// DeleteAccount removes a user and all of their registrations as a
// unit.
func (s *Service) DeleteAccount(ctx context.Context, username string) (*DeleteAccountResult, *Rejection) {
	if username == "" {
		return nil, Reject("Username must not be empty.")
	}
	if !s.creds.RemoveAllForUser(username) {
		return nil, Reject(fmt.Sprintf("Username not registered: %s", username))
	}

	s.logger.Debug("account deleted", "username", username)
	return &DeleteAccountResult{
		Success:        true,
		DeletedAccount: username,
	}, nil
}

// identityForRegistration returns the identity for the username,
// reusing the stored handle for an existing user and minting a fresh
// random one otherwise. Returns nil only if randomness is unavailable.
func (s *Service) identityForRegistration(username, displayName string) (*UserIdentity, bool) {
	if handle, ok := s.creds.UserHandleForUsername(username); ok {
		return &UserIdentity{
			Name:        username,
			DisplayName: displayName,
			ID:          handle,
		}, true
	}
	handle, err := generateRandom(tokenLength)
	if err != nil {
		return nil, false
	}
	return &UserIdentity{
		Name:        username,
		DisplayName: displayName,
		ID:          handle,
	}, false
}

// authorizeReRegistration enforces that adding a credential to an
// existing account carries a session for that account's handle. The
// user may have gained registrations between start and finish, so the
// check is repeated here.
func (s *Service) authorizeReRegistration(request *RegistrationRequest, identity UserIdentity) *Rejection {
	if len(s.creds.RegistrationsForUser(request.Username)) == 0 {
		return nil
	}
	if s.sessions.BelongsTo(identity.ID, request.SessionToken) {
		return nil
	}
	return Reject(msgRegistrationFailed, fmt.Sprintf("User %s already exists", request.Username))
}

func (s *Service) resolveAttestation(certDER []byte, trusted bool) *Attestation {
	if s.metadata == nil || len(certDER) == 0 {
		if trusted {
			return &Attestation{Trusted: true}
		}
		return nil
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil
	}
	att, err := s.metadata.Attestation(cert)
	if err != nil {
		return nil
	}
	return att
}

// mintToken is best effort: an outcome without a token is still a
// success.
func (s *Service) mintToken(ctx context.Context, identity UserIdentity) string {
	if s.tokens == nil {
		return ""
	}
	token, err := s.tokens.GenerateToken(ctx, identity)
	if err != nil {
		s.logger.Error("failed to generate token", "username", identity.Name, "error", err)
		return ""
	}
	return token
}

func (s *Service) count(ceremony, status string) {
	if s.metrics != nil {
		s.metrics.CeremonyCount(ceremony, status)
	}
}

func (s *Service) observe(ceremony string, startedAt time.Time) {
	if s.metrics != nil && !startedAt.IsZero() {
		s.metrics.ObserveCeremonyDuration(ceremony, time.Since(startedAt))
	}
}

// attestationCertInfo renders the attestation certificate in DER and
// human-readable form for the registration outcome.
func attestationCertInfo(certDER []byte) *AttestationCertInfo {
	if len(certDER) == 0 {
		return nil
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil
	}
	text := fmt.Sprintf("Subject: %s\nIssuer: %s\nSerial: %s\nNot Before: %s\nNot After: %s\nSignature Algorithm: %s",
		cert.Subject, cert.Issuer, cert.SerialNumber,
		cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339),
		cert.SignatureAlgorithm)
	return &AttestationCertInfo{
		DER:  certDER,
		Text: text,
	}
}

func verificationDetail(err error) string {
	var vErr *VerificationError
	if errors.As(err, &vErr) {
		return vErr.Reason
	}
	return err.Error()
}
