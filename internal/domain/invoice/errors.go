package invoice

import (
	"errors"
	"fmt"
)

var (
	// ErrInvoiceNotFound is returned when an invoice is not found
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrNumberAllocation is returned once the bounded retry loop around
	// document number allocation has been exhausted
	ErrNumberAllocation = errors.New("could not allocate document number")

	// ErrLinesLocked is returned when line items, currency or status are
	// edited after a payment has been applied
	ErrLinesLocked = errors.New("invoice lines are locked after payment")

	// ErrNotDraft is returned when deleting an invoice that is not a draft
	ErrNotDraft = errors.New("only draft invoices may be deleted")
)

// ValidationError represents an error that occurs during invoice validation
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

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound)
}
