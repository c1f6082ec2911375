package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrInvalidTransition is returned when a lifecycle method is called from a state
	// that does not allow it.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)
)
