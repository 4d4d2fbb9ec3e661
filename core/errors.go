package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized is returned when a protected call has no token or the token was rejected.
	ErrUnauthorized = errors.New("user not authenticated")
	ErrForbidden    = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

// TransportError reports that a remote service could not be reached or failed on its side.
type TransportError struct {
	Service    string // "backend" | "identity"
	StatusCode int    // 0 when no response was received
	Err        error
}

func NewTransportError(service string, statusCode int, err error) error {
	return &TransportError{Service: service, StatusCode: statusCode, Err: err}
}

func (err *TransportError) Error() string {
	if err.StatusCode != 0 {
		return fmt.Sprintf("%s unavailable: status %d", err.Service, err.StatusCode)
	}
	return fmt.Sprintf("%s unavailable: %v", err.Service, err.Err)
}

// Unwrap returns the underlying error; errors.Cause stops at the TransportError.
func (err *TransportError) Unwrap() error { return err.Err }

// RejectionError is a business-rule rejection from a remote service (duplicate email, limit exceeded..).
// Message is surfaced verbatim to the user.
type RejectionError struct {
	StatusCode int
	Message    string
}

func NewRejectionError(statusCode int, msg string) error {
	return &RejectionError{StatusCode: statusCode, Message: msg}
}

func (err *RejectionError) Error() string {
	return err.Message
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// IsUnauthorized reports whether err (or its cause) is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Cause(err) == ErrUnauthorized
}
