package recurring

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a recurring invoice template is not found
	ErrNotFound = errors.New("recurring invoice not found")
)

// ValidationError represents an error that occurs during template validation
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
