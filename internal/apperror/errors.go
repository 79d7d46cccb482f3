// Package apperror provides the error type returned by services and
// handlers. An AppError carries the HTTP status, a machine-readable type,
// and a message that is safe to show players and operators. The echo error
// handler in internal/app turns it into a response.
//
// Repositories may return wrapped infrastructure errors; services convert
// them before they reach a handler.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a domain error with an HTTP mapping.
type AppError struct {
	// Code is the HTTP status code.
	Code int `json:"-"`

	// Type classifies the error for API clients, e.g. "not_found".
	Type string `json:"type"`

	// Message is safe to display.
	Message string `json:"message"`

	// Internal is logged, never sent.
	Internal error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of e that records cause for logging.
func (e *AppError) WithInternal(cause error) *AppError {
	out := *e
	out.Internal = cause
	return &out
}

func newError(code int, typ, message string) *AppError {
	return &AppError{Code: code, Type: typ, Message: message}
}

// NewNotFound creates a 404 error.
func NewNotFound(message string) *AppError {
	return newError(http.StatusNotFound, "not_found", message)
}

// NewBadRequest creates a 400 error.
func NewBadRequest(message string) *AppError {
	return newError(http.StatusBadRequest, "bad_request", message)
}

// NewUnauthorized creates a 401 error.
func NewUnauthorized(message string) *AppError {
	return newError(http.StatusUnauthorized, "unauthorized", message)
}

// NewForbidden creates a 403 error.
func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, "forbidden", message)
}

// NewConflict creates a 409 error. Gameplay uses it for stale role-state
// versions.
func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, "conflict", message)
}

// NewValidation creates a 422 error for input that parsed but is not
// acceptable, including invalid action definitions.
func NewValidation(message string) *AppError {
	return newError(http.StatusUnprocessableEntity, "validation_error", message)
}

// NewTooManyRequests creates a 429 error.
func NewTooManyRequests(message string) *AppError {
	return newError(http.StatusTooManyRequests, "rate_limited", message)
}

var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 for handlers reached without the context
// their middleware should have set.
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 that hides err from the client.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given status.
func HasCode(err error, code int) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// SafeMessage returns a message that may be shown to the client.
func SafeMessage(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status for err, 500 for foreign errors.
func SafeCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
