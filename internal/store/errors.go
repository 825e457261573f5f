package store

import "errors"

var (
	// ErrRekeyConflict is returned by Rekey when the old id has no row and
	// the new id is already taken.
	ErrRekeyConflict = errors.New("rekey target already exists")

	// ErrHandleReleased is returned when a released Handle is used again.
	ErrHandleReleased = errors.New("handle already released")
)
