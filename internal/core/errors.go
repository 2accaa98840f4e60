package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrDuplicate    = errors.New("already exists")
	ErrBackingStore = errors.New("backing store failure")

	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCategory      = errors.New("empty category")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrEmptyUser          = errors.New("empty user")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrMissingResource    = errors.New("resource not found")
)

// ValidationError reports a caller-supplied field that violates a constraint.
// It matches ErrValidation and unwraps to the specific sentinel, if any.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// DuplicateError reports a category name that already exists for a user,
// compared case-insensitively.
type DuplicateError struct {
	User string
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("category %q already exists for user %q", e.Name, e.User)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// BackingStoreError is a fatal failure of the durable medium: unreachable,
// misconfigured or unauthorised. It is never retried by the store.
type BackingStoreError struct {
	Medium   string // "csv", "sqlite", "sheets", ...
	Resource string // file path, table, spreadsheet id, credentials source
	Op       string
	Err      error
}

func (e *BackingStoreError) Error() string {
	msg := fmt.Sprintf("%s backing store: %s %s", e.Medium, e.Op, e.Resource)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackingStoreError) Is(target error) bool { return target == ErrBackingStore }

func (e *BackingStoreError) Unwrap() error { return e.Err }

// NewBackingStoreError builds a BackingStoreError.
func NewBackingStoreError(medium, op, resource string, err error) *BackingStoreError {
	return &BackingStoreError{Medium: medium, Op: op, Resource: resource, Err: err}
}
