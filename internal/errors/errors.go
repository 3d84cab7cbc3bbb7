// Package errors defines the error type shared by the registry, the
// authorized_keys editor and the entity manager.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error.
type Kind string

const (
	KindNameInvalid      Kind = "NAME_INVALID"
	KindAlreadyExists    Kind = "ALREADY_EXISTS"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidPublicKey Kind = "INVALID_PUBLIC_KEY"
	KindNoFreePorts      Kind = "NO_FREE_PORTS"
	KindConfigMissing    Kind = "CONFIG_MISSING"
	KindConfigInvalid    Kind = "CONFIG_INVALID"
	KindIO               Kind = "IO_FAILURE"
	KindDrift            Kind = "DRIFT"
)

// Error is a categorized error with an optional hint for the operator.
type Error struct {
	Kind       Kind
	Message    string
	Suggestion string
	Cause      error
}

// New creates an error of the given kind.
func New(kind Kind, message, suggestion string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err as a KindIO error.
func Wrap(err error, message string) *Error {
	return &Error{
		Kind:    KindIO,
		Message: message,
		Cause:   err,
	}
}

// WrapWithKind wraps err with an explicit kind and suggestion.
func WrapWithKind(err error, kind Kind, message, suggestion string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error renders a single line: the message followed by the cause, if any.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err, or anything it wraps, is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Hint returns the suggestion attached to err, or "".
func Hint(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Suggestion
	}
	return ""
}
