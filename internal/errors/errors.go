// Package errors provides the unified error taxonomy for the query engine.
// Every failure that crosses a component boundary is classified here so that
// callers can make a retry decision without inspecting provider-specific
// error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType defines the category of error for proper handling and response.
type ErrorType string

const (
	// Caller errors: never retried.
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"

	// Backing-store pressure: retryable with a suggested wait.
	ErrorTypeThrottled ErrorType = "THROTTLED"

	// Dependency failures: retryable.
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"

	// Everything else.
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// FieldViolation describes one field-level validation failure.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// Error is the single error type used across the engine.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	// Context
	Operation string `json:"operation,omitempty"`
	Resource  string `json:"resource,omitempty"`

	// Retry metadata
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`

	// Field-level detail for validation failures.
	Violations []FieldViolation `json:"violations,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Type, e.Code, e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, ": %s", e.Details)
	}
	if len(e.Violations) > 0 {
		parts := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			parts[i] = v.Field + ": " + v.Message
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ============================================================================
// BUILDER
// ============================================================================

// Builder provides a fluent interface for constructing Error instances.
type Builder struct {
	err *Error
}

// NewError creates a builder with the given type, code and message.
func NewError(errType ErrorType, code, message string) *Builder {
	retryable := errType == ErrorTypeThrottled ||
		errType == ErrorTypeUnavailable ||
		errType == ErrorTypeTimeout
	return &Builder{err: &Error{
		Type:      errType,
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}}
}

func (b *Builder) WithDetails(details string) *Builder {
	b.err.Details = details
	return b
}

func (b *Builder) WithOperation(operation string) *Builder {
	b.err.Operation = operation
	return b
}

func (b *Builder) WithResource(resource string) *Builder {
	b.err.Resource = resource
	return b
}

func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

func (b *Builder) WithRetryable(retryable bool) *Builder {
	b.err.Retryable = retryable
	return b
}

func (b *Builder) WithRetryAfter(d time.Duration) *Builder {
	b.err.RetryAfter = d
	b.err.Retryable = true
	return b
}

func (b *Builder) WithViolations(violations ...FieldViolation) *Builder {
	b.err.Violations = append(b.err.Violations, violations...)
	return b
}

func (b *Builder) Build() *Error {
	return b.err
}

// ============================================================================
// TAXONOMY CONSTRUCTORS
// ============================================================================

func Validation(code, message string) *Builder {
	return NewError(ErrorTypeValidation, code, message)
}

func NotFound(code, message string) *Builder {
	return NewError(ErrorTypeNotFound, code, message)
}

func Throttled(code, message string) *Builder {
	return NewError(ErrorTypeThrottled, code, message)
}

func Unavailable(code, message string) *Builder {
	return NewError(ErrorTypeUnavailable, code, message)
}

func Timeout(code, message string) *Builder {
	return NewError(ErrorTypeTimeout, code, message)
}

func Internal(code, message string) *Builder {
	return NewError(ErrorTypeInternal, code, message)
}

// ============================================================================
// CLASSIFICATION HELPERS
// ============================================================================

// IsType checks whether err (or anything it wraps) is an Error of the
// given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

func IsValidation(err error) bool  { return IsType(err, ErrorTypeValidation) }
func IsNotFound(err error) bool    { return IsType(err, ErrorTypeNotFound) }
func IsThrottled(err error) bool   { return IsType(err, ErrorTypeThrottled) }
func IsUnavailable(err error) bool { return IsType(err, ErrorTypeUnavailable) }
func IsTimeout(err error) bool     { return IsType(err, ErrorTypeTimeout) }

// IsRetryable reports whether the operation that produced err may be retried.
// Unclassified errors are treated as non-retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// RetryAfter returns the suggested wait before retrying, if the error
// carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// Wrap converts an arbitrary error into an Internal Error, preserving an
// existing classification if err is already one of ours.
func Wrap(err error, operation, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Operation == "" {
			e.Operation = operation
		}
		return e
	}
	return Internal("INTERNAL_ERROR", message).
		WithOperation(operation).
		WithCause(err).
		Build()
}
