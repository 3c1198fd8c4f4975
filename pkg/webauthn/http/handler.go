// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package http

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/SpecterX-AHM/WebAuthn-Authenticator/pkg/webauthn"
)

// Version is reported by the version endpoint.
const Version = "1.0.0"

// maxBodyBytes bounds finish-request bodies; authenticator responses
// are small.
const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for the ceremony operations. Start and
// action endpoints take form-encoded fields; finish endpoints take the
// raw JSON response message and hand it to the service untouched.
type Handler struct {
	service *webauthn.Service
	logger  *slog.Logger
}

// NewHandler creates a new ceremony HTTP handler.
func NewHandler(service *webauthn.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, IndexResponse{
		Actions: IndexActions{
			Register:      "/v1/register",
			Authenticate:  "/v1/authenticate",
			Deregister:    "/v1/action/deregister",
			DeleteAccount: "/v1/delete-account",
		},
		Info: IndexInfo{
			Version: "/v1/version",
		},
	})
}

// Version handles GET /version
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, VersionResponse{Version: Version})
}

// StartRegistration handles POST /register
//
// Form fields: username (required), displayName (required),
// credentialNickname, requireResidentKey, sessionToken (base64url).
// Response: the pending registration request, including the creation
// options to forward to the authenticator.
func (h *Handler) StartRegistration(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeFailure(w, webauthn.Reject("Failed to parse request."))
		return
	}

	username := r.Form.Get(FieldUsername)
	displayName := r.Form.Get(FieldDisplayName)
	if username == "" || displayName == "" {
		h.writeFailure(w, webauthn.Reject("username and displayName are required."))
		return
	}

	sessionToken, ok := h.decodeBase64(w, r.Form.Get(FieldSessionToken), FieldSessionToken)
	if !ok {
		return
	}

	request, rejection := h.service.StartRegistration(r.Context(), webauthn.StartRegistrationParams{
		Username:           username,
		DisplayName:        displayName,
		Nickname:           r.Form.Get(FieldCredentialNickname),
		RequireResidentKey: r.Form.Get(FieldRequireResidentKey) == "true",
		SessionToken:       sessionToken,
	})
	if rejection != nil {
		h.writeFailure(w, rejection)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

// FinishRegistration handles POST /register/finish
//
// Request body: the registration response message as produced by the
// client. Response: the registration outcome.
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	message, ok := h.readBody(w, r)
	if !ok {
		return
	}
	outcome, rejection := h.service.FinishRegistration(r.Context(), message)
	if rejection != nil {
		h.writeFailure(w, rejection)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// FinishU2FRegistration handles POST /register/finish-u2f
//
// Request body: the legacy U2F registration response message.
func (h *Handler) FinishU2FRegistration(w http.ResponseWriter, r *http.Request) {
	message, ok := h.readBody(w, r)
	if !ok {
		return
	}
	outcome, rejection := h.service.FinishU2FRegistration(r.Context(), message)
	if rejection != nil {
		h.writeFailure(w, rejection)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// StartAuthentication handles POST /authenticate
//
// Form fields: username (optional; empty requests a username-less
// ceremony for discoverable credentials).
func (h *Handler) StartAuthentication(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeFailure(w, webauthn.Reject("Failed to parse request."))
		return
	}

	request, rejection := h.service.StartAuthentication(r.Context(), r.Form.Get(FieldUsername))
	if rejection != nil {
		h.writeFailure(w, rejection)
		return
	}
	h.writeJSON(w, http.StatusOK, request)
}

// FinishAuthentication handles POST /authenticate/finish
//
// Request body: the assertion response message as produced by the
// client. Response: the authentication outcome.
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	message, ok := h.readBody(w, r)
	if !ok {
		return
	}
	outcome, rejection := h.service.FinishAuthentication(r.Context(), message)
	if rejection != nil {
		h.writeFailure(w, rejection)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// DeregisterCredential handles POST /action/deregister
//
// Form fields: sessionToken (base64url, required), credentialId
// (base64url, required).
func (h *Handler) DeregisterCredential(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeFailure(w, webauthn.Reject("Failed to parse request."))
		return
	}

	sessionToken, ok := h.decodeBase64(w, r.Form.Get(FieldSessionToken), FieldSessionToken)
	if !ok {
		return
	}
	credentialID, ok := h.decodeBase64(w, r.Form.Get(FieldCredentialID), FieldCredentialID)
	if !ok {
		return
	}

	result, rejection := h.service.DeregisterCredential(r.Context(), sessionToken, credentialID)
	if rejection != nil {
		h.writeFailure(w, rejection)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// DeleteAccount handles POST /delete-account
//
// Form fields: username (required).
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeFailure(w, webauthn.Reject("Failed to parse request."))
		return
	}

	result, rejection := h.service.DeleteAccount(r.Context(), r.Form.Get(FieldUsername))
	if rejection != nil {
		h.writeFailure(w, rejection)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// readBody reads a finish-request body up to the size limit.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeFailure(w, webauthn.Reject("Failed to read request body."))
		return nil, false
	}
	return body, true
}

// decodeBase64 decodes an optional base64url form field. Empty input
// yields nil.
func (h *Handler) decodeBase64(w http.ResponseWriter, value, field string) ([]byte, bool) {
	if value == "" {
		return nil, true
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		// Accept padded input too.
		decoded, err = base64.URLEncoding.DecodeString(value)
	}
	if err != nil {
		h.writeFailure(w, webauthn.Reject("Invalid "+field+" encoding."))
		return nil, false
	}
	return decoded, true
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeFailure writes a ceremony rejection as the messages envelope.
func (h *Handler) writeFailure(w http.ResponseWriter, rejection *webauthn.Rejection) {
	h.logger.Debug("ceremony rejected", "messages", rejection.Messages)
	h.writeJSON(w, http.StatusBadRequest, FailureResponse{Messages: rejection.Messages})
}
