// Package apierrors provides the error taxonomy shared by pairfs services and
// its mapping to HTTP status codes.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindUnavailable      Kind = "SERVICE_UNAVAILABLE"
	KindBadRequest       Kind = "INVALID_REQUEST"
	KindInternal         Kind = "INTERNAL_ERROR"
	KindTransientNetwork Kind = "TRANSIENT_NETWORK"
)

// Error is a classified error carrying an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for the error kind.
func (e *Error) HTTPStatus() int {
	return StatusFor(e.Kind)
}

func newError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// NotFound creates a NotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// Unavailable creates an Unavailable error.
func Unavailable(format string, args ...interface{}) *Error {
	return newError(KindUnavailable, nil, format, args...)
}

// BadRequest creates a BadRequest error.
func BadRequest(format string, args ...interface{}) *Error {
	return newError(KindBadRequest, nil, format, args...)
}

// Internal wraps cause as an Internal error.
func Internal(cause error, format string, args ...interface{}) *Error {
	return newError(KindInternal, cause, format, args...)
}

// TransientNetwork wraps cause as a TransientNetwork error.
func TransientNetwork(cause error, format string, args ...interface{}) *Error {
	return newError(KindTransientNetwork, cause, format, args...)
}

// Wrap classifies cause with the given kind.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return newError(kind, cause, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusFor maps a kind to an HTTP status code.
func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindBadRequest:
		return http.StatusBadRequest
	case KindTransientNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus maps an HTTP status code returned by a remote service back to a kind.
func FromStatus(statusCode int) Kind {
	switch {
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusBadRequest:
		return KindBadRequest
	case statusCode == http.StatusServiceUnavailable:
		return KindUnavailable
	case statusCode == http.StatusBadGateway, statusCode == http.StatusGatewayTimeout:
		return KindTransientNetwork
	case statusCode == http.StatusTooManyRequests:
		return KindUnavailable
	default:
		return KindInternal
	}
}
