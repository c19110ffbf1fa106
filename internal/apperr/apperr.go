// Package apperr defines the error kinds surfaced to callers of the carrier
// sales service and their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindSessionClosed       Kind = "session_closed"
	KindAuthentication      Kind = "authentication"
	KindPersistence         Kind = "persistence"
	KindInternal            Kind = "internal"
)

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k})
// works as a kind check.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// InvalidInput reports a malformed identifier or amount.
func InvalidInput(format string, args ...any) *Error {
	return newf(KindInvalidInput, nil, format, args...)
}

// NotFound reports an unknown identifier.
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// UpstreamUnavailable reports an external dependency that timed out or failed.
// Callers may retry.
func UpstreamUnavailable(err error, format string, args ...any) *Error {
	return newf(KindUpstreamUnavailable, err, format, args...)
}

// SessionClosed reports a negotiation request against a terminal session.
func SessionClosed(format string, args ...any) *Error {
	return newf(KindSessionClosed, nil, format, args...)
}

// Authentication reports a missing or invalid API key.
func Authentication(format string, args ...any) *Error {
	return newf(KindAuthentication, nil, format, args...)
}

// Persistence reports a failed write to the metrics store.
func Persistence(err error, format string, args ...any) *Error {
	return newf(KindPersistence, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message for err. Internal errors get a
// generic message so driver details do not leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Retryable reports whether the same request may succeed if repeated.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstreamUnavailable, KindPersistence:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindSessionClosed:
		return http.StatusConflict
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
