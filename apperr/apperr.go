// Package apperr defines the error kinds surfaced to users of the back office.
//
// Every kind is a sentinel matched with errors.Is; the *Error value carries the
// user-facing message and, for validation failures, the per-field errors.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyLocked = errors.New("already locked")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrPermission    = errors.New("permission denied")
)

type Error struct {
	kind    error
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the sentinel the error belongs to.
func (e *Error) Kind() error { return e.kind }

func NotFound(format string, args ...any) error {
	return &Error{kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func AlreadyLocked(format string, args ...any) error {
	return &Error{kind: ErrAlreadyLocked, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func Permission(format string, args ...any) error {
	return &Error{kind: ErrPermission, Message: fmt.Sprintf(format, args...)}
}

// Validation reports field errors, keyed by field name.
func Validation(message string, fields map[string]string) error {
	return &Error{kind: ErrValidation, Message: message, Fields: fields}
}

// Message extracts the user-facing message, falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// Fields returns the validation field errors carried by err, if any.
func Fields(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
