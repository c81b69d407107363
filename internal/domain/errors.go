package domain

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation wraps input validation failures.
	ErrValidation = errors.New("validation error")

	// ErrConflict is returned when an operation is illegal in the entity's
	// current state, including schedule overlap rejections.
	ErrConflict = errors.New("conflict")

	// ErrInvariant marks a broken internal invariant, e.g. a sent counter
	// exceeding the total. These must be surfaced, never clamped.
	ErrInvariant = errors.New("invariant violation")
)
