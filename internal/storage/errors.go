package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrUnavailable covers every infrastructure failure: lost connections,
	// timeouts, unexpected driver errors. The cause is kept for logs only.
	ErrUnavailable = errors.New("store unavailable")

	ErrInvalidReference = errors.New("referenced row does not exist")
)

// ConflictError reports a unique constraint violation.
type ConflictError struct {
	Constraint string
	Field      string
}

func (e *ConflictError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s already exists", e.Field)
	}
	return fmt.Sprintf("unique constraint %s violated", e.Constraint)
}

// StoreError wraps a driver failure so that both ErrUnavailable and the original
// cause stay matchable with errors.Is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

func Unavailable(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
