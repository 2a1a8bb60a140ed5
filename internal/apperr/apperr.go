// Package apperr defines the error kinds shared by the catalog, audit and
// session components. Callers classify errors with errors.Is against the
// sentinel kinds.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("authorization error")
	ErrState        = errors.New("invalid session state")
	ErrPersistence  = errors.New("persistence error")
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return wrap(ErrUnauthorized, format, args...)
}

func State(format string, args ...any) error {
	return wrap(ErrState, format, args...)
}

// Persistence marks err as a store failure. Errors that already carry the
// persistence kind are returned unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// UnauditedError reports that a data change was committed but its audit event
// could not be written.
type UnauditedError struct {
	Action string
	Err    error
}

func (e *UnauditedError) Error() string {
	return fmt.Sprintf("%s committed but not audited: %v", e.Action, e.Err)
}

func (e *UnauditedError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
