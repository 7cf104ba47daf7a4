package repository

import "errors"

var (
	// ErrNotFound is returned when an id does not resolve to a stored entity.
	ErrNotFound = errors.New("entity not found")

	// ErrConstraintViolation is returned when a mutation would break a local
	// invariant (quantity sign, terminal status, cyclic dependency). These are
	// validation failures, not broker failures, and nothing is persisted.
	ErrConstraintViolation = errors.New("constraint violation")
)
