// Package apperr defines the typed errors returned by the data-access layers.
// Handlers never inspect messages; they hand errors to response.Error, which maps Kind to a status.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindInvalid
	KindGone
	KindTooManyRequests
	KindTimeout
	KindUnavailable
)

// Error is an application error with a stable code and a client-safe message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error with the same code, so sentinels match errors built with WithMessage.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Shared conditions used across packages.
var (
	ErrUnauthorized = New(KindUnauthorized, "unauthorized", "Unauthorized")
	ErrCreatorOnly  = New(KindForbidden, "creator_required", "Forbidden: Creator role required")
	ErrNotOwner     = New(KindForbidden, "not_owner", "Forbidden: Not survey owner")
	ErrAccessDenied = New(KindForbidden, "access_denied", "Forbidden: Access denied")
)

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}
