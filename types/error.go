package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the core.
type ErrorCode string

// Workflow description validation error codes. These are raised before any
// job is created.
const (
	ErrUnknownStage        ErrorCode = "UNKNOWN_STAGE"
	ErrUnknownStep         ErrorCode = "UNKNOWN_STEP"
	ErrDuplicateStage      ErrorCode = "DUPLICATE_STAGE"
	ErrDuplicateStep       ErrorCode = "DUPLICATE_STEP"
	ErrOrderViolation      ErrorCode = "ORDER_VIOLATION"
	ErrIncompleteStage     ErrorCode = "INCOMPLETE_STAGE"
	ErrMissingUpstreamStep ErrorCode = "MISSING_UPSTREAM_STEP"
)

// Job description error codes. Fatal to the current command; the operator
// must re-run planning.
const (
	ErrNoDescriptionsFound ErrorCode = "NO_DESCRIPTIONS_FOUND"
	ErrMissingDescription  ErrorCode = "MISSING_DESCRIPTION"
	ErrMalformedShape      ErrorCode = "MALFORMED_SHAPE"
)

// Dataset fusion error codes. Fatal to the fusion pass; partial output must
// be discarded by the caller.
const (
	ErrDataIncomplete ErrorCode = "DATA_INCOMPLETE"
	ErrShapeError     ErrorCode = "SHAPE_ERROR"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
