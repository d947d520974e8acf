package service

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceNotFound is returned when a service is not found
	ErrServiceNotFound = errors.New("service not found")

	// ErrInvalidTransition is returned when the lifecycle state machine
	// forbids the requested transition
	ErrInvalidTransition = errors.New("invalid service status transition")

	// ErrHasActiveChildren is returned when deleting a service that still
	// has unresolved active or suspended children
	ErrHasActiveChildren = errors.New("service has active or suspended children")
)

// ValidationError represents an error that occurs during service validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
