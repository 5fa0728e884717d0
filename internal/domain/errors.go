package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	ErrDuplicateEmail   = fmt.Errorf("%w: user with this email already exists", ErrConflict)
	ErrWeakPassword     = fmt.Errorf("%w: password too weak", ErrBadRequest)
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrBadRequest)

	// ErrInvalidOrExpiredCode covers absent, expired, already consumed and wrong codes alike.
	ErrInvalidOrExpiredCode = fmt.Errorf("%w: confirmation code expired or not found", ErrBadRequest)

	// ErrStoreUnavailable means the ephemeral code store could not be reached.
	ErrStoreUnavailable = errors.New("code store unavailable")

	// ErrUserNotFound is returned when a user disappears between two steps of a workflow.
	// It is not a client error.
	ErrUserNotFound = errors.New("user vanished during workflow")

	ErrInactiveAccount = fmt.Errorf("%w: account is not activated", ErrForbidden)
)
