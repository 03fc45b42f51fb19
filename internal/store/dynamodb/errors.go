package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	xerrors "queryflow/internal/errors"
)

// classify maps provider errors onto the engine taxonomy so the breaker and
// callers can distinguish not-found, throttled and transient failures.
func classify(err error, operation, table string) error {
	if err == nil {
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return xerrors.NotFound("TABLE_NOT_FOUND", "table or index does not exist").
			WithOperation(operation).
			WithResource(table).
			WithCause(err).
			Build()
	}

	var throughput *types.ProvisionedThroughputExceededException
	var reqLimit *types.RequestLimitExceeded
	var collectionLimit *types.ItemCollectionSizeLimitExceededException
	if errors.As(err, &throughput) || errors.As(err, &reqLimit) || errors.As(err, &collectionLimit) {
		return xerrors.Throttled("STORE_THROTTLED", "backing store throttled the request").
			WithOperation(operation).
			WithResource(table).
			WithRetryAfter(time.Second).
			WithCause(err).
			Build()
	}

	var internalErr *types.InternalServerError
	if errors.As(err, &internalErr) {
		return xerrors.Unavailable("STORE_TRANSIENT", "backing store transient failure").
			WithOperation(operation).
			WithResource(table).
			WithCause(err).
			Build()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Timeout("STORE_TIMEOUT", "backing store call timed out").
			WithOperation(operation).
			WithResource(table).
			WithCause(err).
			Build()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "Throttling", "RequestLimitExceeded":
			return xerrors.Throttled("STORE_THROTTLED", "backing store throttled the request").
				WithOperation(operation).
				WithResource(table).
				WithRetryAfter(time.Second).
				WithCause(err).
				Build()
		case "ServiceUnavailable", "RequestTimeout":
			return xerrors.Unavailable("STORE_TRANSIENT", "backing store transient failure").
				WithOperation(operation).
				WithResource(table).
				WithCause(err).
				Build()
		}
	}

	return xerrors.Internal("STORE_ERROR", "backing store call failed").
		WithOperation(operation).
		WithResource(table).
		WithCause(err).
		Build()
}
