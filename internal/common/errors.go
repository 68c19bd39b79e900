// Package common defines shared constants and sentinel errors used across
// the qfolders server layers. Callers should use errors.Is to match these
// values; collaborator errors are translated into them at service boundaries.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Credential errors reported to the request layer.
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrAuthProviderUnavailable = errors.New("auth provider unavailable")
	ErrSessionExpired          = errors.New("session expired")

	// Attachment policy errors.
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrTooLarge        = errors.New("attachment too large")

	// Data or blob store unreachable or failing.
	ErrStoreUnavailable = errors.New("store unavailable")
)
