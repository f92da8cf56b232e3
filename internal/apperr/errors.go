// Package apperr defines the error taxonomy shared across the card store,
// dump engine and sync coordinator.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateTitle   = errors.New("group title already exists")
	ErrDuplicateCard    = errors.New("card with identical content already exists")
	ErrUnknownGroup     = errors.New("unknown group")
	ErrProtected        = errors.New("reserved group is protected")
	ErrCapacityExceeded = errors.New("group capacity exceeded")
	ErrInvalidScore     = errors.New("review score must be between 0 and 5")
	ErrAuthFailed       = errors.New("remote authentication failed")
	ErrTimeout          = errors.New("remote operation timed out")
)

// ImportError reports a failed dump import. Statement carries the offending
// statement so the user can see what the remote dump actually contained.
type ImportError struct {
	Statement string
	Err       error
}

func (e *ImportError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("import failed: %v", e.Err)
	}
	return fmt.Sprintf("import failed on %q: %v", e.Statement, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// TransportError reports a non-2xx remote response. The status code is kept
// verbatim for user-facing diagnostics.
type TransportError struct {
	Status int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote returned status %d", e.Status)
}
