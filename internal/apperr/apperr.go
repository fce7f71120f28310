// Package apperr defines the error taxonomy shared by the services,
// repositories and HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindConflict      Kind = "conflict"
	KindCapacity      Kind = "capacity"
	KindNotFound      Kind = "not_found"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

// Error carries a kind, a stable machine code and a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func ValidationWithDetails(message string, details map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: message, Details: details}
}

func Authorization(code, message string) *Error {
	return New(KindAuthorization, code, message)
}

func State(code, message string) *Error {
	return New(KindState, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Capacity(code, message string) *Error {
	return New(KindCapacity, code, message)
}

func NotFound(resource string) *Error {
	return New(KindNotFound, "NOT_FOUND", resource+" not found")
}

func Unavailable(message string, err error) *Error {
	return Wrap(KindUnavailable, "UNAVAILABLE", message, err)
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
