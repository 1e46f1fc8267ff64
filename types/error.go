package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the artifact store.
type ErrorCode string

// Store error codes
const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrValidation        ErrorCode = "VALIDATION"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrPathSecurity      ErrorCode = "PATH_SECURITY"
	ErrIO                ErrorCode = "IO_ERROR"
	ErrAuditWriteFailure ErrorCode = "AUDIT_WRITE_FAILURE"
)

// Error represents a structured error with code, message, and the artifact it concerns.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	Cause      error     `json:"-"`
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

// Is matches another *Error by code, so errors.Is(err, types.NewError(code, ""))
// works as a code check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithArtifact records the artifact the error concerns.
func (e *Error) WithArtifact(id string) *Error {
	e.ArtifactID = id
	return e
}

// NotFound builds a NOT_FOUND error.
func NotFound(format string, args ...any) *Error {
	return NewError(ErrNotFound, fmt.Sprintf(format, args...))
}

// Validation builds a VALIDATION error.
func Validation(format string, args ...any) *Error {
	return NewError(ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidTransition builds an INVALID_TRANSITION error.
func InvalidTransition(format string, args ...any) *Error {
	return NewError(ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// PathSecurity builds a PATH_SECURITY error.
func PathSecurity(format string, args ...any) *Error {
	return NewError(ErrPathSecurity, fmt.Sprintf(format, args...))
}

// IO wraps an underlying storage failure.
func IO(cause error, format string, args ...any) *Error {
	return NewError(ErrIO, fmt.Sprintf(format, args...)).WithCause(cause)
}

// AuditWriteFailure wraps a failed audit append.
func AuditWriteFailure(cause error, format string, args ...any) *Error {
	return NewError(ErrAuditWriteFailure, fmt.Sprintf(format, args...)).WithCause(cause)
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}
