// Package apperr defines the error taxonomy shared by every boundary of the
// server. Instead of dispatching on concrete error types, callers tag errors
// with a Kind and boundaries (HTTP responses, websocket error frames) match
// on that tag.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the wire-visible error category.
type Kind string

const (
	// KindUnauthenticated: missing, expired or malformed credential.
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	// KindAccessDenied: the caller is authenticated but not allowed.
	KindAccessDenied Kind = "ACCESS_DENIED"
	// KindInvalidArgument: the request itself is malformed or meaningless.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	// KindRateLimited: a token bucket rejected the attempt.
	KindRateLimited Kind = "RATE_LIMITED"
	// KindInternal: storage or other unexpected failure. The Msg of an
	// internal error is generic; detail stays in server logs only.
	KindInternal Kind = "INTERNAL_ERROR"
)

// Error carries a Kind alongside a client-safe message and an optional cause.
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

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with a client-safe message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error. The cause is kept for logs and errors.Is
// chains; only Msg is ever shown to a client.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Untagged errors are treated
// as internal so that unexpected failures never leak detail to clients.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ClientMessage returns the message safe to show to the caller. Internal
// errors collapse to a generic message regardless of what the chain holds.
func ClientMessage(err error) string {
	kind := KindOf(err)
	if kind == KindInternal {
		return "internal server error"
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}

// HTTPStatus maps a Kind to the status code used by the REST endpoints.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindAccessDenied:
		return http.StatusForbidden
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
