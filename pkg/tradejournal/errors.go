package tradejournal

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode defines error classification codes for structured error handling.
type ErrorCode string

// Error codes for different error categories.
const (
	ErrCodeUnauthenticated     ErrorCode = "UNAUTHENTICATED"
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeUserNotFound        ErrorCode = "USER_NOT_FOUND"
	ErrCodeTradeNotFound       ErrorCode = "TRADE_NOT_FOUND"
	ErrCodeQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderError       ErrorCode = "PROVIDER_ERROR"
	ErrCodeSchemaViolation     ErrorCode = "SCHEMA_VIOLATION"
	ErrCodeAnalysisDegraded    ErrorCode = "ANALYSIS_DEGRADED"
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeDatabase            ErrorCode = "DATABASE_ERROR"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnsupported         ErrorCode = "UNSUPPORTED"
)

// Error represents a structured error with classification code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with classification code and additional context.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsErrorCode reports whether any error in err's chain carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns the outermost error code in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// QuotaExceededError carries the cap that refused an analysis and when it lifts.
type QuotaExceededError struct {
	Plan    string
	Limit   int
	Used    int
	Month   string
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s plan allows %d analyses per month; %d used in %s, resets at %s",
		e.Plan, e.Limit, e.Used, e.Month, e.ResetAt.Format(time.RFC3339))
}

// ProviderStatusError is an upstream model call that returned a non-success status.
type ProviderStatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// AnalysisDegradedError is returned when every model attempt failed and the
// fallback analysis was persisted in its place.
type AnalysisDegradedError struct {
	Analysis *Analysis
	Attempts int
	Cause    error
}

func (e *AnalysisDegradedError) Error() string {
	return fmt.Sprintf("analysis degraded after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *AnalysisDegradedError) Unwrap() error {
	return e.Cause
}
