// Package apierr provides the HTTP-facing error type used by the
// dashboard read model: a typed error with a safe, client-presentable
// message decoupled from the internal cause.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type discriminates the class of failure a read-model endpoint hit.
type Type string

const (
	TypeValidation Type = "validation"
	TypeNotFound   Type = "not_found"
	TypeTimeout    Type = "timeout"
	TypeRateLimit  Type = "rate_limit"
	TypeInternal   Type = "internal"
	TypeBusDown    Type = "bus_unavailable"
)

var statusByType = map[Type]int{
	TypeValidation: http.StatusBadRequest,
	TypeNotFound:   http.StatusNotFound,
	TypeTimeout:    http.StatusRequestTimeout,
	TypeRateLimit:  http.StatusTooManyRequests,
	TypeInternal:   http.StatusInternalServerError,
	TypeBusDown:    http.StatusServiceUnavailable,
}

var safeMessageByType = map[Type]string{
	TypeNotFound:  "the requested resource was not found",
	TypeTimeout:   "the request timed out",
	TypeRateLimit: "too many requests, slow down",
	TypeBusDown:   "the event bus is currently unavailable",
}

// Error is a typed, HTTP-status-bearing error returned by read-model handlers.
type Error struct {
	Type       Type
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message, StatusCode: statusByType[t]}
}

func Wrap(cause error, t Type, message string) *Error {
	return &Error{Type: t, Message: message, Cause: cause, StatusCode: statusByType[t]}
}

func Wrapf(cause error, t Type, format string, args ...interface{}) *Error {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetails sets Details in place and returns the same error for chaining.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func (e *Error) WithDetailsf(format string, args ...interface{}) *Error {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

func NewNotFound(resource string) *Error {
	return New(TypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewValidation(message string) *Error {
	return New(TypeValidation, message)
}

func NewTimeout(operation string) *Error {
	return New(TypeTimeout, fmt.Sprintf("operation timed out: %s", operation))
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// StatusCode returns the HTTP status for err, defaulting to 500 for
// errors that are not an *Error.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// SafeMessage returns a client-presentable message: validation messages
// pass through verbatim (they describe caller input, not internals), other
// types return a generic, type-specific message so internal details never
// leak to callers.
func SafeMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "an unexpected error occurred"
	}
	if e.Type == TypeValidation {
		return e.Message
	}
	if msg, ok := safeMessageByType[e.Type]; ok {
		return msg
	}
	return "an internal error occurred"
}
