package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity (project, file) does not exist.
// Job lookups scoped by chat id report absence through their bool return
// instead, so a wrong chat id is indistinguishable from a missing id.
var ErrNotFound = errors.New("entity not found")

// ValidationError wraps field-specific validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
