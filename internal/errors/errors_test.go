package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderConstructsError(t *testing.T) {
	cause := errors.New("socket closed")
	err := Unavailable("STORE_TRANSIENT", "backing store transient failure").
		WithOperation("IndexedLookup").
		WithResource("Users").
		WithDetails("connection reset").
		WithCause(cause).
		Build()

	assert.Equal(t, ErrorTypeUnavailable, err.Type)
	assert.Equal(t, "STORE_TRANSIENT", err.Code)
	assert.Equal(t, "IndexedLookup", err.Operation)
	assert.Equal(t, "Users", err.Resource)
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
}

func TestRetryableDefaultsByType(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{"validation is not retryable", Validation("BAD", "bad").Build(), false},
		{"not found is not retryable", NotFound("MISSING", "missing").Build(), false},
		{"throttled is retryable", Throttled("SLOW", "slow down").Build(), true},
		{"unavailable is retryable", Unavailable("DOWN", "down").Build(), true},
		{"timeout is retryable", Timeout("LATE", "late").Build(), true},
		{"internal is not retryable", Internal("BOOM", "boom").Build(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestIsTypeSeesThroughWrapping(t *testing.T) {
	inner := Throttled("STORE_THROTTLED", "throttled").Build()
	wrapped := fmt.Errorf("executing unit: %w", inner)

	assert.True(t, IsThrottled(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsThrottled(errors.New("plain")))
}

func TestRetryAfter(t *testing.T) {
	err := Throttled("STORE_THROTTLED", "throttled").
		WithRetryAfter(2 * time.Second).
		Build()

	d, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	_, ok = RetryAfter(Internal("BOOM", "boom").Build())
	assert.False(t, ok)
}

func TestErrorStringIncludesViolations(t *testing.T) {
	err := Validation("INVALID_BATCH", "batch validation failed").
		WithViolations(
			FieldViolation{Field: "requests[0].TableName", Rule: "required", Message: "is required"},
			FieldViolation{Field: "requests[2]", Rule: "required", Message: "must not be nil"},
		).
		Build()

	msg := err.Error()
	assert.Contains(t, msg, "INVALID_BATCH")
	assert.Contains(t, msg, "requests[0].TableName")
	assert.Contains(t, msg, "requests[2]")
}

func TestWrapPreservesClassification(t *testing.T) {
	classified := NotFound("TABLE_NOT_FOUND", "no such table").Build()
	wrapped := Wrap(classified, "Query", "query failed")
	assert.Equal(t, ErrorTypeNotFound, wrapped.Type)
	assert.Equal(t, "Query", wrapped.Operation)

	plain := Wrap(errors.New("boom"), "Query", "query failed")
	assert.Equal(t, ErrorTypeInternal, plain.Type)
	assert.Equal(t, "Query", plain.Operation)

	assert.Nil(t, Wrap(nil, "Query", "query failed"))
}
