// Copyright (c) 2025 SpecterX-AHM
//
// This file is part of WebAuthn-Authenticator.

package webauthn

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and store operations.
var (
	// ErrUserNotFound is returned when a username has no account.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned when registering a username that is taken.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrCredentialNotFound is returned when a credential ID cannot be resolved.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialAlreadyExists is returned when adding a duplicate credential.
	ErrCredentialAlreadyExists = errors.New("credential already exists")

	// ErrSessionNotFound is returned when a session token cannot be resolved.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRequestNotFound is returned when no pending ceremony matches a request ID.
	ErrRequestNotFound = errors.New("request not found")

	// ErrInvalidRequest is returned when a client payload is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrVerificationFailed is returned when credential verification fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrNoCredentials is returned when a user has no registered credentials.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("webauthn service not configured")
)

// Error wraps an underlying error with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error for the given operation.
func NewError(op string, err error) error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// VerificationError carries the reason a registration or assertion
// ceremony was rejected by the verifier. It matches ErrVerificationFailed
// under errors.Is.
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

// Unwrap returns the underlying error.
func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed || errors.Is(e.Err, target)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}
