package annotation

import (
	"errors"
	"fmt"

	"github.com/mapmark/mapmark/internal/geo"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError is reported to the user; no state is mutated when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidatePosition rejects coordinates outside the WGS84 range.
func ValidatePosition(p Position) error {
	if !geo.Valid(p.Latitude, p.Longitude) {
		return NewValidationError("position", fmt.Sprintf("invalid coordinates %f,%f", p.Latitude, p.Longitude))
	}
	return nil
}
