// Package apperr defines the error taxonomy shared by services and HTTP handlers.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
	KindUnavailable
)

// Error is an application error carrying a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status for KindUpstream; zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a 400 error.
func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

// Unauthenticated returns a 401 error.
func Unauthenticated(msg string) error { return &Error{Kind: KindUnauthenticated, Message: msg} }

// Forbidden returns a 403 error.
func Forbidden(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

// NotFound returns a 404 error.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// Conflict returns a 409 error.
func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// Upstream wraps a rejection from an external provider. The provider's status and message are kept as-is.
func Upstream(status int, msg string) error {
	return &Error{Kind: KindUpstream, Status: status, Message: msg}
}

// Unavailable returns a 503 error for a dependency that is not configured or not reachable.
func Unavailable(msg string) error { return &Error{Kind: KindUnavailable, Message: msg} }

// Internal wraps an unexpected failure. msg is what the client sees; err is kept for logs.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err; errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an application error of kind k.
func Is(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
