package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error identifier surfaced at the HTTP boundary.
type Code string

const (
	CodeMissingField         Code = "MISSING_FIELD"
	CodeInvalidField         Code = "INVALID_FIELD"
	CodeInvalidTimeFormat    Code = "INVALID_TIME_FORMAT"
	CodeInvalidDate          Code = "INVALID_DATE"
	CodeInvalidStrategyCount Code = "INVALID_STRATEGY_COUNT"
	CodeMissingStrategyField Code = "MISSING_STRATEGY_FIELD"
	CodeInvalidResponseShape Code = "INVALID_RESPONSE_SHAPE"
	CodePolicyViolation      Code = "POLICY_VIOLATION"
	CodeUpstreamUnavailable  Code = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamRateLimited  Code = "UPSTREAM_RATE_LIMITED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeInternal             Code = "INTERNAL"
)

var (
	// ErrInvalidTimeFormat is returned when a time-of-day string cannot be parsed.
	ErrInvalidTimeFormat = stderrors.New("invalid time format")
	// ErrUnauthorized is returned when a request carries no valid bearer credential.
	ErrUnauthorized = stderrors.New("unauthorized")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = stderrors.New("not found")
)

// ValidationError is an input problem. It is never retried.
type ValidationError struct {
	Code    Code
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validation builds a ValidationError.
func Validation(code Code, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// MissingField builds a ValidationError for an absent required field.
func MissingField(field string) *ValidationError {
	return &ValidationError{Code: CodeMissingField, Field: field, Message: "is required"}
}

// ExternalServiceError describes a failed call to the reasoning service.
type ExternalServiceError struct {
	StatusCode int
	Retryable  bool
	Message    string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("external service: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("external service: %s", e.Message)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// IsRateLimited reports whether the upstream answered HTTP 429.
func (e *ExternalServiceError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// NewExternalServiceError classifies an HTTP status: 429 and 5xx are retryable,
// every other status is not.
func NewExternalServiceError(statusCode int, message string) *ExternalServiceError {
	return &ExternalServiceError{
		StatusCode: statusCode,
		Retryable:  statusCode == http.StatusTooManyRequests || statusCode >= 500,
		Message:    message,
	}
}

// GuardrailViolationError marks a reasoning-service answer that broke its
// contract. Repeating the same prompt would likely reproduce it, so it is
// never retried automatically.
type GuardrailViolationError struct {
	Code    Code
	Message string
	Details map[string]interface{}
}

func (e *GuardrailViolationError) Error() string {
	return fmt.Sprintf("guardrail violation (%s): %s", e.Code, e.Message)
}

// Guardrail builds a GuardrailViolationError.
func Guardrail(code Code, format string, args ...interface{}) *GuardrailViolationError {
	return &GuardrailViolationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is worth another attempt. Unclassified
// errors (network failures, per-attempt timeouts) are treated as transient;
// validation and guardrail errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ext *ExternalServiceError
	if stderrors.As(err, &ext) {
		return ext.Retryable
	}
	var val *ValidationError
	if stderrors.As(err, &val) {
		return false
	}
	var guard *GuardrailViolationError
	if stderrors.As(err, &guard) {
		return false
	}
	return true
}
