// Package common holds the shared error taxonomy for the docufill core.
package common

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the core packages. Callers match with errors.Is.
var (
	// ErrNotFound covers unknown document, session, and slot identifiers.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a state-machine call is not legal in
	// the session's current state (e.g. a reply on a completed session).
	ErrInvalidState = errors.New("invalid session state")

	// ErrIncompleteDocument is returned when assembly is attempted while a
	// required slot is still pending.
	ErrIncompleteDocument = errors.New("incomplete document")
)

// NotFoundf wraps ErrNotFound with a formatted description.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidStatef wraps ErrInvalidState with a formatted description.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
