// Package apperror classifies failures into the kinds the HTTP and WebSocket
// adapters need to map responses: each kind carries an HTTP status code and an
// operational flag. Operational errors are expected caller-facing failures
// (missing record, bad input); non-operational errors indicate a bug or a
// store-level fault and should be logged loudly at the boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	RecordNotFound     Kind = "RecordNotFound"
	InvalidRequestBody Kind = "InvalidRequestBody"
	InvalidJSON        Kind = "InvalidJson"
	FailedInsert       Kind = "FailedInsert"
	MalformedKey       Kind = "MalformedKey"
)

type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatus returns the status code the boundary should respond with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case RecordNotFound:
		return http.StatusNotFound
	case InvalidRequestBody, InvalidJSON:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Operational reports whether the error is an expected caller-facing failure
// rather than a bug or infrastructure fault.
func (e *Error) Operational() bool {
	switch e.Kind {
	case RecordNotFound, InvalidRequestBody, InvalidJSON:
		return true
	default:
		return false
	}
}

func New(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// StatusOf maps any error to an HTTP status, defaulting to 500 for errors
// outside the taxonomy.
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// OperationalOf reports whether err is operational; unknown errors are
// treated as non-operational so they surface for alerting.
func OperationalOf(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Operational()
	}
	return false
}
