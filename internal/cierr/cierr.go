// Package cierr defines the error taxonomy shared across CIForge's
// components. Every error that crosses a component boundary (store,
// runtime, controller, API) is reduced to one of the kinds below rather
// than modeled as a distinct Go type per failure mode.
package cierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of HTTP status mapping and
// controller retry policy.
type Kind string

const (
	AuthRequired       Kind = "auth_required"
	AuthInvalid        Kind = "auth_invalid"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	InvalidInput       Kind = "invalid_input"
	RuntimeUnavailable Kind = "runtime_unavailable"
	Transient          Kind = "transient"
	Fatal              Kind = "fatal"
)

// Error wraps an underlying cause with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of the given kind, preserving the cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Fatal if err is not a
// *Error (an error escaping without classification is a bug, and Fatal is
// the safest default response to an unclassified failure).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}
