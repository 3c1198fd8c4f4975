// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"bytes"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/SpecterX-AHM/WebAuthn-Authenticator/pkg/cache"
)

// MemoryCredentialStore is a bounded in-memory CredentialStore. Accounts
// are evicted whole, least-recently-accessed first, after the configured
// capacity or idle TTL is exceeded. Eviction is a capacity policy, not a
// correctness guarantee: an evicted user must re-register.
type MemoryCredentialStore struct {
	users *cache.Cache[string, []*Registration]
}

// NewMemoryCredentialStore creates a store bounded to maxUsers accounts
// with the given idle expiry.
func NewMemoryCredentialStore(maxUsers int, idleTTL time.Duration) *MemoryCredentialStore {
	return &MemoryCredentialStore{
		users: cache.New[string, []*Registration](maxUsers, idleTTL),
	}
}

// CredentialDescriptorsForUser returns descriptors for all of the user's
// credentials. Empty for an unknown user.
func (s *MemoryCredentialStore) CredentialDescriptorsForUser(username string) []protocol.CredentialDescriptor {
	regs, ok := s.users.Get(username)
	if !ok {
		return nil
	}
	descriptors := make([]protocol.CredentialDescriptor, 0, len(regs))
	for _, reg := range regs {
		descriptors = append(descriptors, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: reg.Credential.CredentialID,
			Transport:    reg.Transports,
		})
	}
	return descriptors
}

// UserHandleForUsername resolves a username to its user handle.
func (s *MemoryCredentialStore) UserHandleForUsername(username string) ([]byte, bool) {
	regs, ok := s.users.Get(username)
	if !ok || len(regs) == 0 {
		return nil, false
	}
	return regs[0].UserIdentity.ID, true
}

// UsernameForUserHandle resolves a user handle to its username by
// scanning all accounts.
func (s *MemoryCredentialStore) UsernameForUserHandle(userHandle []byte) (string, bool) {
	var (
		username string
		found    bool
	)
	s.users.Range(func(name string, regs []*Registration) bool {
		for _, reg := range regs {
			if bytes.Equal(reg.UserIdentity.ID, userHandle) {
				username = name
				found = true
				return false
			}
		}
		return true
	})
	return username, found
}

// LookupCredential finds a credential by ID. A non-empty userHandle
// scopes the match to that owner; an empty handle scans globally. The
// global scan exists because the owning username is unknown during
// assertion verification until the authenticator identifies itself; the
// verifier enforces ownership via the user handle it returns.
func (s *MemoryCredentialStore) LookupCredential(credentialID, userHandle []byte) (*CredentialRecord, bool) {
	var (
		record *CredentialRecord
		found  bool
	)
	s.users.Range(func(name string, regs []*Registration) bool {
		for _, reg := range regs {
			if !bytes.Equal(reg.Credential.CredentialID, credentialID) {
				continue
			}
			if len(userHandle) > 0 && !bytes.Equal(reg.Credential.UserHandle, userHandle) {
				continue
			}
			cred := reg.Credential
			record = &cred
			found = true
			return false
		}
		return true
	})
	return record, found
}

// LookupAllByCredentialID returns every record matching the credential
// ID across all accounts.
func (s *MemoryCredentialStore) LookupAllByCredentialID(credentialID []byte) []*CredentialRecord {
	var records []*CredentialRecord
	s.users.Range(func(name string, regs []*Registration) bool {
		for _, reg := range regs {
			if bytes.Equal(reg.Credential.CredentialID, credentialID) {
				cred := reg.Credential
				records = append(records, &cred)
			}
		}
		return true
	})
	return records
}

// RegistrationsForUser returns all of the user's registrations.
func (s *MemoryCredentialStore) RegistrationsForUser(username string) []*Registration {
	regs, ok := s.users.Get(username)
	if !ok {
		return nil
	}
	out := make([]*Registration, len(regs))
	copy(out, regs)
	return out
}

// RegistrationForCredential returns the user's registration with the
// given credential ID.
func (s *MemoryCredentialStore) RegistrationForCredential(username string, credentialID []byte) (*Registration, bool) {
	regs, ok := s.users.Get(username)
	if !ok {
		return nil, false
	}
	for _, reg := range regs {
		if bytes.Equal(reg.Credential.CredentialID, credentialID) {
			return reg, true
		}
	}
	return nil, false
}

// AddRegistration stores a registration under the username. Returns
// false if the user already has a registration with the same credential
// ID.
func (s *MemoryCredentialStore) AddRegistration(username string, reg *Registration) bool {
	added := true
	s.users.Update(username, func(regs []*Registration, ok bool) ([]*Registration, bool) {
		for _, existing := range regs {
			if bytes.Equal(existing.Credential.CredentialID, reg.Credential.CredentialID) {
				added = false
				return regs, true
			}
		}
		next := make([]*Registration, len(regs), len(regs)+1)
		copy(next, regs)
		return append(next, reg), true
	})
	return added
}

// RemoveRegistration removes the registration with the given credential
// ID from the user's set. Returns false if absent.
func (s *MemoryCredentialStore) RemoveRegistration(username string, credentialID []byte) bool {
	removed := false
	s.users.Update(username, func(regs []*Registration, ok bool) ([]*Registration, bool) {
		if !ok {
			return nil, false
		}
		next := make([]*Registration, 0, len(regs))
		for _, reg := range regs {
			if bytes.Equal(reg.Credential.CredentialID, credentialID) {
				removed = true
				continue
			}
			next = append(next, reg)
		}
		// Removing the last credential removes the account.
		return next, len(next) > 0
	})
	return removed
}

// RemoveAllForUser removes the account and all of its registrations as
// a unit. Returns false if the user did not exist.
func (s *MemoryCredentialStore) RemoveAllForUser(username string) bool {
	return s.users.Invalidate(username)
}

// UserExists reports whether the username has any registrations.
func (s *MemoryCredentialStore) UserExists(username string) bool {
	regs, ok := s.users.Get(username)
	return ok && len(regs) > 0
}

// UpdateSignatureCount replaces the stored signature counter of the
// (username, credentialID) registration. The registration value is
// replaced wholesale under the store lock; records are never mutated in
// place.
func (s *MemoryCredentialStore) UpdateSignatureCount(username string, credentialID []byte, newCount uint32) error {
	err := ErrCredentialNotFound
	s.users.Update(username, func(regs []*Registration, ok bool) ([]*Registration, bool) {
		if !ok {
			return nil, false
		}
		next := make([]*Registration, len(regs))
		copy(next, regs)
		for i, reg := range next {
			if bytes.Equal(reg.Credential.CredentialID, credentialID) {
				updated := *reg
				updated.Credential.SignatureCount = newCount
				next[i] = &updated
				err = nil
				break
			}
		}
		return next, true
	})
	return WrapError("webauthn.UpdateSignatureCount", err)
}
