// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

// Package http provides composable HTTP handlers for the ceremony
// operations.
//
// Start and action endpoints accept form-encoded fields; finish
// endpoints accept the raw JSON response message produced by the
// client and pass it to the service untouched. Ceremony rejections are
// returned with status 400 and a {"messages": [...]} envelope carrying
// the ordered failure list.
//
// # Usage
//
// Create a handler from a ceremony service and mount it on your router:
//
//	svc, _ := webauthn.NewService(...)
//	handler := webauthnhttp.NewHandler(svc)
//
//	r.Route("/v1", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler)
//	})
//
// # Endpoints
//
//	GET  /                    endpoint index
//	GET  /version             server version
//	POST /register            start a registration ceremony
//	POST /register/finish     finish a registration ceremony
//	POST /register/finish-u2f finish a legacy U2F registration
//	POST /authenticate        start an authentication ceremony
//	POST /authenticate/finish finish an authentication ceremony
//	POST /action/deregister   remove a single credential
//	POST /delete-account      remove an account and its credentials
package http
