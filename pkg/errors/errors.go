package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeAuthRequired ErrorType = "auth_required"
	ErrorTypeDataFetch    ErrorType = "data_fetch"
	ErrorTypeChallenge    ErrorType = "challenge"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error is a typed crawler error. Code carries the HTTP status when one exists.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

// Sentinels for errors.Is. A sentinel matches any *Error of the same type,
// and ErrDataFetch also matches challenge errors since an unresolved
// challenge is a failed fetch.
var (
	ErrAuthRequired = &Error{Type: ErrorTypeAuthRequired}
	ErrDataFetch    = &Error{Type: ErrorTypeDataFetch}
	ErrChallenge    = &Error{Type: ErrorTypeChallenge}
	ErrTimeout      = &Error{Type: ErrorTypeTimeout}
	ErrConfig       = &Error{Type: ErrorTypeConfig}
	ErrNetwork      = &Error{Type: ErrorTypeNetwork}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Err != nil {
		return false
	}
	if t.Type == e.Type {
		return true
	}
	return t.Type == ErrorTypeDataFetch && e.Type == ErrorTypeChallenge
}

// NewDataFetch builds a data_fetch error.
func NewDataFetch(code int, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeDataFetch, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewAuthRequired builds an auth_required error.
func NewAuthRequired(message string) *Error {
	return &Error{Type: ErrorTypeAuthRequired, Code: 401, Message: message}
}

// NewChallenge builds an error for an anti-bot challenge that could not be resolved.
func NewChallenge(attempts int) *Error {
	return &Error{
		Type:    ErrorTypeChallenge,
		Code:    200,
		Message: fmt.Sprintf("anti-bot challenge still present after %d attempts", attempts),
	}
}

// NewTimeout builds a timeout error for the named operation.
func NewTimeout(op string, after time.Duration, cause error) *Error {
	return &Error{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("%s did not complete within %s", op, after),
		Err:     cause,
	}
}

// NewConfig builds a configuration error.
func NewConfig(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeConfig, Message: fmt.Sprintf(format, args...)}
}

// NewNetwork wraps a transport failure.
func NewNetwork(err error) *Error {
	return &Error{Type: ErrorTypeNetwork, Err: err}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0, 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
