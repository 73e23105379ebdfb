package errors

import (
	"context"
	"errors"
	"net"
	"net/http"

	"gorm.io/gorm"
)

// Error is the type all handlers and services speak. Raw storage errors are
// translated into one of these at the repository boundary and never cross it.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return e.Message
}

// New creates a new Error with the given message and HTTP status.
func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

var (
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrNotFound            = New("not found", http.StatusNotFound)
	ErrConflict            = New("conflict", http.StatusConflict)
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	// ErrTransient marks timeouts and connection failures. Callers retry on
	// their next scheduled tick, never immediately.
	ErrTransient = New("temporarily unavailable", http.StatusServiceUnavailable)
)

// ValidationError reports malformed input. Surfaced to the caller
// immediately and never retried.
func ValidationError(message string) *Error {
	return New(message, http.StatusBadRequest)
}

// NotFoundError reports an absent conversation, user or message.
func NotFoundError(message string) *Error {
	return New(message, http.StatusNotFound)
}

// ConflictError reports a uniqueness-constraint race. The resolver recovers
// from it locally; it should not reach a handler.
func ConflictError(message string) *Error {
	return New(message, http.StatusConflict)
}

func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusConflict
}

func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusBadRequest
}

func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusServiceUnavailable
}

// FromGorm translates a gorm/driver error into the taxonomy. Anything not
// recognised is an internal error.
func FromGorm(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFoundError(message)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ConflictError(message)
	case errors.Is(err, context.DeadlineExceeded):
		return New(message, http.StatusServiceUnavailable)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return New(message, http.StatusServiceUnavailable)
	}
	return New(message, http.StatusInternalServerError)
}
