package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrEmptyAggregate = errors.New("aggregate over an empty review set")
	ErrPersistence    = errors.New("persistence failure")
	ErrTimeout        = fmt.Errorf("%w: operation timed out", ErrPersistence)
	ErrConflict       = errors.New("concurrent modification could not be resolved")

	// Store-level outcomes that read-modify-write callers retry on.
	ErrVersionMismatch = errors.New("document version mismatch")
	ErrDuplicate       = errors.New("document already exists")
)
