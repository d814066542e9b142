package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict is returned when a compare-and-set update loses to a concurrent writer.
	ErrVersionConflict = errors.New("repository: version conflict")
)
