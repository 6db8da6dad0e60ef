// Package errs holds the error taxonomy shared by the governance services.
package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConflict is returned when registering a username that already exists.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized covers failed logins and unknown or revoked API keys.
	// It never says which of the two happened.
	ErrUnauthorized = errors.New("unauthorized")

	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotFound marks an absent key. Callers branch on it; it is not fatal.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks a durable read or write that failed, including
	// records that could not be decoded.
	ErrStorage = errors.New("storage failure")

	ErrInvalidInput = errors.New("invalid input")
)

// RateLimitedError is returned when an admission check is denied.
type RateLimitedError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded. Limit: %d/hour", e.Limit)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// Storage wraps err as a storage failure for the given operation.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}
