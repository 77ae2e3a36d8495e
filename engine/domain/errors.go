package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine packages.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidHotel    = errors.New("invalid hotel")
	ErrInvalidBooking  = errors.New("invalid booking")
	ErrInvalidCheckout = errors.New("invalid checkout")
	ErrInvalidID       = errors.New("invalid id")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
