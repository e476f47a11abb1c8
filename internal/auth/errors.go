package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrUnauthenticated means no credential material was presented.
	ErrUnauthenticated = errors.New("auth: authentication required")
	// ErrReauthRequired covers every re-authentication failure without saying which check failed.
	ErrReauthRequired = errors.New("auth: re-authentication required")
	// ErrTenantSuspended is returned at login for users of a suspended tenant.
	ErrTenantSuspended = errors.New("auth: tenant suspended")
)
