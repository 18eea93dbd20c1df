package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Degradable infrastructure error codes: these are absorbed locally and
// degrade functionality instead of failing the user-visible request.
const (
	ErrEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	ErrCacheUnavailable     ErrorCode = "CACHE_UNAVAILABLE"
)

// Agent error codes
const (
	ErrAgentInvocationFailed ErrorCode = "AGENT_INVOCATION_FAILED"
	ErrAgentTimeout          ErrorCode = "AGENT_TIMEOUT"
	ErrInvalidAgentTag       ErrorCode = "INVALID_AGENT_TAG"
)

// Session error codes
const (
	ErrSessionConflict ErrorCode = "SESSION_CONFLICT"
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionClosed   ErrorCode = "SESSION_CLOSED"
)

// Transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Component  string    `json:"component,omitempty"`
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

// WithComponent sets the originating component name.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsDegradable reports whether the error should be absorbed locally
// (skip caching or routing context) rather than surfaced to the caller.
func IsDegradable(err error) bool {
	switch GetErrorCode(err) {
	case ErrEmbeddingUnavailable, ErrCacheUnavailable:
		return true
	}
	return false
}
