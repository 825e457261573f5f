package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned when a Lifecycle is used before Open.
	ErrNotOpen = errors.New("session not open")

	// ErrClosed is returned when a Lifecycle is used after Close.
	ErrClosed = errors.New("session closed")
)

// WriteError describes a failed mutating operation. It is logged at the
// Lifecycle boundary; callers only see the boolean result.
type WriteError struct {
	// Op is the failed operation: "write", "rotate" or "destroy".
	Op string

	// ID is the session id the operation targeted.
	ID string

	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("session %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
