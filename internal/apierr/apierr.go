// Package apierr classifies handler errors into envelope status codes.
package apierr

import (
	"errors"
	"net/http"
)

// Error carries a client-facing message and the status it maps to.
type Error struct {
	status int
	msg    string
}

func (e *Error) Error() string { return e.msg }

// Status returns the HTTP-style status code of the error.
func (e *Error) Status() int { return e.status }

// BadRequest reports a validation or business-rule failure (400).
func BadRequest(msg string) error { return &Error{status: http.StatusBadRequest, msg: msg} }

// NotFound reports a missing record (404).
func NotFound(msg string) error { return &Error{status: http.StatusNotFound, msg: msg} }

// IsBadRequest reports whether err classifies as 400.
func IsBadRequest(err error) bool { return StatusOf(err) == http.StatusBadRequest }

// IsNotFound reports whether err classifies as 404.
func IsNotFound(err error) bool { return StatusOf(err) == http.StatusNotFound }

// StatusOf returns the status for err: the wrapped Error's status, or 500
// for anything else. A nil error is 200.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}
