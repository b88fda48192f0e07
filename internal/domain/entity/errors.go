package entity

import (
	"errors"
	"fmt"
)

// Error taxonomy for the assignment/delegation core. Every failure is scoped
// to the single requested operation; ErrConflict is the only kind a caller is
// expected to retry.
var (
	// ErrValidation is returned for malformed or self-contradictory requests
	// (self-delegation, circular delegation, missing required values).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a task or delegation rule does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller may not act on the target.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when a guarded state transition loses a race.
	ErrConflict = errors.New("conflict")
)

// ValidationError wraps ErrValidation with detail text.
func ValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundError wraps ErrNotFound with detail text.
func NotFoundError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// UnauthorizedError wraps ErrUnauthorized with detail text.
func UnauthorizedError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// ConflictError wraps ErrConflict with detail text.
func ConflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
