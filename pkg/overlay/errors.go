package overlay

import (
	"errors"
	"fmt"
)

// ErrInvalidOverlay is returned when an overlay fails validation.
var ErrInvalidOverlay = errors.New("overlay: invalid overlay")

// ValidationError describes which field of which overlay was rejected.
type ValidationError struct {
	ID     int64
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("overlay %d: %s %s", e.ID, e.Field, e.Reason)
}

// Unwrap returns ErrInvalidOverlay so errors.Is works.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidOverlay
}
