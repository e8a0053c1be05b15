package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is wrapped by every constructor/Validate failure
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentModification is returned by conditional writes that matched no row
	ErrConcurrentModification = errors.New("record was modified concurrently")

	// ErrNotFound is returned by writes that target a row that does not exist
	ErrNotFound = errors.New("record not found")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
