// Package core provides the tiermem memory store and retention policy.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrValidation indicates that a required field was empty or invalid.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("not found")

	// ErrProvider indicates that an external provider (embedding, index,
	// durable store) was unavailable or failed.
	ErrProvider = errors.New("provider unavailable")

	// ErrConflict indicates a duplicate active session id.
	ErrConflict = errors.New("session already active")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error wraps errors with operation context.
//
// It records which operation failed, making error messages more informative
// for debugging.
//
// Example:
//
//	err := &Error{Op: "Store", Err: ErrProvider}
//	// Error() returns: "tiermem: Store: provider unavailable"
type Error struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message in the form "tiermem: <Op>: <Err>".
func (e *Error) Error() string {
	return fmt.Sprintf("tiermem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with Error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewError("Store", err)
//	}
func NewError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// validationError builds a ValidationError for a missing or invalid field.
func validationError(op, field string) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %s", ErrValidation, field)}
}

// providerError wraps a provider failure. Both ErrProvider and the
// underlying cause stay on the unwrap chain.
func providerError(op string, err error) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrProvider, err)}
}
