package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across agentcanvas.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidImport  ErrorCode = "INVALID_IMPORT"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
)

// Lookup error codes
const (
	ErrWorkflowNotFound   ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrNodeNotFound       ErrorCode = "NODE_NOT_FOUND"
	ErrConnectionNotFound ErrorCode = "CONNECTION_NOT_FOUND"
	ErrTemplateNotFound   ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrVersionNotFound    ErrorCode = "VERSION_NOT_FOUND"
	ErrExecutionNotFound  ErrorCode = "EXECUTION_NOT_FOUND"
	ErrToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
)

// Execution error codes
const (
	ErrMissingStartNode    ErrorCode = "MISSING_START_NODE"
	ErrNotAwaitingApproval ErrorCode = "NOT_AWAITING_APPROVAL"
	ErrApprovalRejected    ErrorCode = "APPROVAL_REJECTED"
	ErrGraphExhausted      ErrorCode = "GRAPH_EXHAUSTED"
	ErrStepLimitExceeded   ErrorCode = "STEP_LIMIT_EXCEEDED"
	ErrExecutionCancelled  ErrorCode = "EXECUTION_CANCELLED"
	ErrGuardrailViolated   ErrorCode = "GUARDRAIL_VIOLATED"
	ErrConditionInvalid    ErrorCode = "CONDITION_INVALID"
	ErrToolValidation      ErrorCode = "TOOL_VALIDATION"
)

// Upstream error codes
const (
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrStorage         ErrorCode = "STORAGE_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from anywhere in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WrapError wraps err with a code unless it already carries one.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(code, message).WithCause(err)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
