package auth

import "errors"

var (
	ErrNotFound        = errors.New("auth: not found")
	ErrAlreadyExists   = errors.New("auth: already exists")
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrWrongPassword   = errors.New("auth: wrong password")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")

	// Token failure taxonomy. Verify reports exactly one of these.
	ErrMalformed     = errors.New("auth: malformed token")
	ErrExpired       = errors.New("auth: token expired")
	ErrRevoked       = errors.New("auth: token revoked")
	ErrSigningFailed = errors.New("auth: token signing failed")
)
