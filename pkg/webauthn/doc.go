// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

// Package webauthn orchestrates WebAuthn and legacy U2F ceremonies for
// a relying party: it issues challenges, correlates asynchronous client
// responses back to the pending ceremony that produced them, binds
// outcomes to sessions, and persists registered credentials.
//
// The package provides:
//   - A ceremony orchestrator (Service) with start/finish operations
//     for registration (including U2F), authentication, credential
//     deregistration, and account deletion
//   - A bounded in-memory credential store (MemoryCredentialStore)
//     with whole-account eviction
//   - A session manager binding opaque tokens to user handles
//   - A pluggable verifier contract (Verifier) with a default
//     implementation (RelyingParty) over go-webauthn/webauthn
//   - Raw U2F key conversion to canonical COSE encoding
//   - Optional JWT generation after successful ceremonies
//
// # Architecture
//
//  1. Service layer (Service) - ceremony state machine and
//     authorization rules
//  2. Storage layer (CredentialStore, SessionManager, request caches) -
//     bounded in-memory stores with idle expiry
//  3. Verification layer (Verifier) - the external relying-party
//     library, consumed as a black box
//  4. HTTP layer (pkg/webauthn/http) - composable handlers mirroring
//     the ceremony operations
//
// # Usage
//
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config: &webauthn.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	})
//
// All ceremony-ending failures are returned as a *Rejection carrying an
// ordered list of human-readable messages; no error crosses the
// service boundary.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers only
// expose the WebAuthn API in secure contexts.
package webauthn
