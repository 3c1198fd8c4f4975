// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/SpecterX-AHM/WebAuthn-Authenticator/pkg/cache"
)

// SessionManager maintains the short-lived bidirectional mapping between
// opaque session tokens and user handles. Sessions authorize
// re-registration and deregistration without re-authenticating; losing
// one forces re-authentication, never privilege escalation.
type SessionManager struct {
	// mu serializes access to both indices so a reader can never
	// observe one index updated without the other.
	mu            sync.Mutex
	tokensToUsers *cache.Cache[string, []byte]
	usersToTokens *cache.Cache[string, []byte]
}

// NewSessionManager creates a session manager bounded to maxSessions
// live sessions with the given idle expiry.
func NewSessionManager(maxSessions int, idleTTL time.Duration) *SessionManager {
	return &SessionManager{
		tokensToUsers: cache.New[string, []byte](maxSessions, idleTTL),
		usersToTokens: cache.New[string, []byte](maxSessions, idleTTL),
	}
}

// CreateSession returns the session token for the user handle, minting
// a fresh 32-byte random token if none is live. Repeated calls for the
// same handle return the identical token while the mapping lives; the
// reverse mapping's recency is refreshed on every call.
func (m *SessionManager) CreateSession(userHandle []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, err := m.usersToTokens.GetOrLoad(hex.EncodeToString(userHandle), func() ([]byte, error) {
		return generateRandom(tokenLength)
	})
	if err != nil {
		return nil, WrapError("webauthn.CreateSession", err)
	}
	m.tokensToUsers.Put(hex.EncodeToString(token), userHandle)
	return token, nil
}

// ResolveSession returns the user handle the token was minted for.
func (m *SessionManager) ResolveSession(token []byte) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tokensToUsers.Get(hex.EncodeToString(token))
}

// BelongsTo reports whether the token authorizes actions for the
// claimed user handle. A missing or empty token fails closed. Handles
// are compared in full, in constant time.
func (m *SessionManager) BelongsTo(claimedHandle, token []byte) bool {
	if len(token) == 0 {
		return false
	}
	handle, ok := m.ResolveSession(token)
	if !ok {
		return false
	}
	if len(handle) != len(claimedHandle) {
		return false
	}
	return subtle.ConstantTimeCompare(handle, claimedHandle) == 1
}
