package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a groupkit error.
type ErrorCode string

// Graph construction errors. Raised once at build time; the graph must be
// fixed by the caller, never retried.
const (
	ErrGraphValidation ErrorCode = "GRAPH_VALIDATION"
)

// Selection errors. Fatal to the current run: the run surfaces a failed
// result instead of continuing with stale scheduler state.
const (
	ErrConditionNotMet ErrorCode = "CONDITION_NOT_MET"
	ErrAgentNotActive  ErrorCode = "AGENT_NOT_ACTIVE"
)

// Runtime errors.
const (
	ErrTerminationMisuse ErrorCode = "TERMINATION_MISUSE"
	ErrDispatch          ErrorCode = "DISPATCH_FAILED"
	ErrRunState          ErrorCode = "RUN_STATE"
)

// Error is a structured error carrying a stable code for programmatic
// handling alongside a human-readable message.
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

// WrapError wraps a cause into a structured Error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// IsErrorCode reports whether err (or anything it wraps) carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" when the error
// is not a structured Error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
