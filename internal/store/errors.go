package store

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates an insert hit a unique constraint.
	ErrDuplicate = errors.New("duplicate row")
)
