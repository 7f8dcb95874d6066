package services

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to API clients.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindAuthentication
	KindNotFound
	KindTransient
)

// Sentinels for errors.Is matching on a Kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrTransient      = &Error{Kind: KindTransient}
)

// Error is a business failure with a client-safe message. Err holds the
// underlying cause, which is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindTransient {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Code is the GraphQL extensions code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "BAD_USER_INPUT"
	case KindConflict:
		return "CONFLICT"
	case KindAuthentication:
		return "UNAUTHENTICATED"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

func validationError(msg string) error { return &Error{Kind: KindValidation, Message: msg} }
func conflictError(msg string) error   { return &Error{Kind: KindConflict, Message: msg} }
func authError(msg string) error       { return &Error{Kind: KindAuthentication, Message: msg} }
func notFoundError(msg string) error   { return &Error{Kind: KindNotFound, Message: msg} }

func transientError(msg string, cause error) error {
	return &Error{Kind: KindTransient, Message: msg, Err: cause}
}

// KindOf returns the Kind of err, or KindTransient for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}
