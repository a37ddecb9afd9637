// Package common defines shared constants and sentinel errors used across
// client and server layers of TaskHub. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Validation errors.
	ErrMissingInput = errors.New("missing input")

	// Credential errors.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrAlreadyConsumed    = errors.New("token already consumed")
	ErrTokenExpired       = errors.New("token expired")
	ErrRevoked            = errors.New("credential revoked")

	// Semantic no-op guards and preconditions.
	ErrAlreadyVerified = errors.New("email already verified")
	ErrSamePassword    = errors.New("new password must differ from the current one")
	ErrEmailUnverified = errors.New("email not verified")

	// Startup errors.
	ErrWeakSecret = errors.New("signing secret is too short")
)
