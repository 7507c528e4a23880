// Package derrors defines the domain error vocabulary shared across services
// and handlers. Errors carry a stable code for HTTP translation plus an
// operator-facing message; field-level validation detail rides along when the
// upstream backend reports it.
package derrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies a class of failure independent of transport.
type Code string

const (
	CodeBadRequest      Code = "bad_request"
	CodeValidation      Code = "validation_failed"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeForbidden       Code = "forbidden"
	CodeUnauthorized    Code = "unauthorized"
	CodeUpstreamTimeout Code = "upstream_timeout"
	CodeUpstream        Code = "upstream_error"
	CodeInternal        Code = "internal_error"
)

// FieldError is one entry of a structured validation failure reported by the
// backend record service (loc identifies the offending field path).
type FieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

func (f FieldError) String() string {
	return strings.Join(f.Loc, ".") + ": " + f.Msg
}

// Error is the canonical domain error.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithFields returns a copy of the error carrying field-level detail.
func (e *Error) WithFields(fields []FieldError) *Error {
	clone := *e
	clone.Fields = fields
	return &clone
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in this package.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code onto the HTTP status used by handlers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
