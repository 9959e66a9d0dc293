package types

import "fmt"

// ErrorCode represents a unified error code across the system.
type ErrorCode string

const (
	// ErrConfiguration: 会话创建时无可用 Provider 或 Persona, 不可重试.
	ErrConfiguration ErrorCode = "CONFIGURATION"
	// ErrCapability: 生成能力传输错误或超时, 局部恢复 (挂起参与者).
	ErrCapability ErrorCode = "CAPABILITY"
	// ErrUpstreamTimeout: 单轮超时, CAPABILITY 的特化.
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	// ErrLimitExceeded: token/成本/上下文预算触顶, 主动停止会话.
	ErrLimitExceeded ErrorCode = "LIMIT_EXCEEDED"
	// ErrCancelled: 外部停止请求.
	ErrCancelled ErrorCode = "CANCELLED"
	// ErrSessionNotFound: 未知会话标识.
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	// ErrInvalidTransition: 会话处于不允许该操作的状态.
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ErrInternal: 未预期的内部错误.
	ErrInternal ErrorCode = "INTERNAL"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Cause     error     `json:"-"`
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

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
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

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
