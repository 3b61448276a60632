package storage

import "errors"

// Sentinel errors shared by all store implementations. Callers match
// them with errors.Is and translate to the API error taxonomy at the
// handler boundary.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a write collides with a unique
	// constraint, such as a duplicate username or group name.
	ErrAlreadyExists = errors.New("record already exists")
)
