// Package store defines the backing-store client contract the engine
// executes planned requests against. Implementations must classify provider
// errors through the engine's error taxonomy so that "resource not found",
// "throttled" and "transient" failures are distinguishable to the breaker
// and to callers.
package store

import (
	"context"

	"queryflow/internal/queryflow"
)

// ReadResult is one page returned by the backing store.
type ReadResult struct {
	Items            []map[string]any `json:"items"`
	NextCursor       string           `json:"nextCursor,omitempty"`
	ItemsExamined    int32            `json:"itemsExamined"`
	ItemsReturned    int32            `json:"itemsReturned"`
	ConsumedCapacity float64          `json:"consumedCapacity"`
}

// Client executes planned requests against the backing store.
type Client interface {
	// IndexedLookup runs a key-addressed query; the request must carry a
	// partition-key value.
	IndexedLookup(ctx context.Context, req *queryflow.AccessRequest) (*ReadResult, error)
	// Scan runs a linear examination of the table (or index).
	Scan(ctx context.Context, req *queryflow.AccessRequest) (*ReadResult, error)
}
