package storage

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write would violate a uniqueness rule,
	// such as a second account with the same email.
	ErrConflict = errors.New("record already exists")

	// ErrInvalidReference is returned when a record points at a parent that
	// does not exist (a course's instructor, an assignment's course).
	ErrInvalidReference = errors.New("referenced record does not exist")
)
