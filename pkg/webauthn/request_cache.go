// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/SpecterX-AHM/WebAuthn-Authenticator/pkg/cache"
)

// tokenLength is the byte length of request IDs, session tokens, and
// user handles.
const tokenLength = 32

// generateRandom returns n cryptographically secure random bytes.
func generateRandom(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return buf, nil
}

// requestCache correlates an opaque request ID with the pending
// ceremony it was issued for. Entries are consumed exactly once via
// Take; an entry that is never taken expires by idle TTL. An expired or
// already-consumed request surfaces to the caller as "no such ceremony
// in progress", not as a distinct error kind.
type requestCache[T any] struct {
	entries *cache.Cache[string, T]
}

func newRequestCache[T any](maxEntries int, idleTTL time.Duration) *requestCache[T] {
	return &requestCache[T]{
		entries: cache.New[string, T](maxEntries, idleTTL),
	}
}

func (c *requestCache[T]) Put(requestID []byte, pending T) {
	c.entries.Put(hex.EncodeToString(requestID), pending)
}

// Take retrieves and unconditionally invalidates the pending ceremony
// in one step. Under concurrent duplicate submissions exactly one
// caller wins.
func (c *requestCache[T]) Take(requestID []byte) (T, bool) {
	return c.entries.Take(hex.EncodeToString(requestID))
}
