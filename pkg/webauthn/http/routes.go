// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SpecterX-AHM/WebAuthn-Authenticator/pkg/correlation"
)

// MountChi mounts the ceremony routes on a chi router.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	r.Route("/v1", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Get("/", h.Index)
	r.Get("/version", h.Version)
	r.Post("/register", h.StartRegistration)
	r.Post("/register/finish", h.FinishRegistration)
	r.Post("/register/finish-u2f", h.FinishU2FRegistration)
	r.Post("/authenticate", h.StartAuthentication)
	r.Post("/authenticate/finish", h.FinishAuthentication)
	r.Post("/action/deregister", h.DeregisterCredential)
	r.Post("/delete-account", h.DeleteAccount)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns a slice of route entries for manual mounting on
// routers not directly supported.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "GET", Path: "/", Handler: h.Index},
		{Method: "GET", Path: "/version", Handler: h.Version},
		{Method: "POST", Path: "/register", Handler: h.StartRegistration},
		{Method: "POST", Path: "/register/finish", Handler: h.FinishRegistration},
		{Method: "POST", Path: "/register/finish-u2f", Handler: h.FinishU2FRegistration},
		{Method: "POST", Path: "/authenticate", Handler: h.StartAuthentication},
		{Method: "POST", Path: "/authenticate/finish", Handler: h.FinishAuthentication},
		{Method: "POST", Path: "/action/deregister", Handler: h.DeregisterCredential},
		{Method: "POST", Path: "/delete-account", Handler: h.DeleteAccount},
	}
}

// CorrelationMiddleware extracts or generates a correlation ID for
// request tracing. It checks the X-Correlation-ID header, then
// X-Request-ID, then generates a new UUID. The ID is added to the
// request context and echoed in the response headers.
func CorrelationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(correlation.CorrelationIDHeader)
			if correlationID == "" {
				correlationID = r.Header.Get(correlation.RequestIDHeader)
			}
			if correlationID == "" {
				correlationID = correlation.NewID()
			}

			ctx := correlation.WithCorrelationID(r.Context(), correlationID)
			r = r.WithContext(ctx)

			w.Header().Set(correlation.CorrelationIDHeader, correlationID)

			next.ServeHTTP(w, r)
		})
	}
}
