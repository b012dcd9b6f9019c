package patterns

import (
	"errors"
	"fmt"
)

// ErrInvalidImport is matched by every ValidationError.
var ErrInvalidImport = errors.New("invalid import")

// ErrDuplicateID is returned by Append when the id is already stored.
var ErrDuplicateID = errors.New("duplicate record id")

// ValidationError describes the first element that failed import validation.
// Index is -1 when the payload as a whole is malformed.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid import: %s", e.Reason)
	}
	if e.Field == "" {
		return fmt.Sprintf("invalid import: record %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid import: record %d: %s %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidImport
}
