package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrUnauthorized   = errors.New("unauthenticated")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("validation failed")
	ErrInternalServer = errors.New("internal server error")

	ErrEmailNotVerified = errors.New("email address not verified")
)

// ValidationError reports a malformed or out-of-range input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TransitionError is returned when a workflow event is not allowed from the listing's current status.
type TransitionError struct {
	Event   string
	Current ListingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a listing that is %s", e.Event, e.Current)
}

func (e *TransitionError) Unwrap() error {
	return ErrConflict
}
