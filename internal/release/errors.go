package release

import (
	"errors"
	"fmt"
)

// ErrDuplicateConflict is returned by UpsertRelease when a release with the
// same normalized external URL is already stored.
var ErrDuplicateConflict = errors.New("release already exists")

// ErrNotFound is returned when a release lookup matches nothing.
var ErrNotFound = errors.New("release not found")

// ErrValidation reports malformed release data.
type ErrValidation struct {
	Field  string
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid release: %s %s", e.Field, e.Reason)
}

// ErrPartialWrite is returned when the release row was committed but one or
// more of its credit or track writes failed. The release is stored and
// ReleaseID is valid.
type ErrPartialWrite struct {
	ReleaseID string
	Cause     error
}

func (e *ErrPartialWrite) Error() string {
	return fmt.Sprintf("release %s stored with incomplete sub-writes: %v", e.ReleaseID, e.Cause)
}

func (e *ErrPartialWrite) Unwrap() error {
	return e.Cause
}
