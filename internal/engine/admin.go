package engine

import (
	"context"

	"queryflow/internal/breaker"
	"queryflow/internal/cache"
	"queryflow/internal/optimizer"
	"queryflow/internal/orchestrator"
	"queryflow/internal/queryflow"
)

// BatchQuery executes requests in grouped-batch mode.
func (e *Engine) BatchQuery(ctx context.Context, requests []*queryflow.AccessRequest) (*orchestrator.BatchResult, error) {
	return e.orch.ExecuteBatch(ctx, requests)
}

// ParallelQuery executes requests in flat-parallel mode under the given
// concurrency width.
func (e *Engine) ParallelQuery(ctx context.Context, requests []*queryflow.AccessRequest, maxConcurrency int64) (*orchestrator.ParallelResult, error) {
	return e.orch.ExecuteParallel(ctx, requests, maxConcurrency)
}

// StreamBatch yields one chunk per sub-batch as it completes. The sequence
// is finite; a new call re-executes from the beginning.
func (e *Engine) StreamBatch(ctx context.Context, requests []*queryflow.AccessRequest) (<-chan orchestrator.Chunk, error) {
	return e.orch.StreamBatch(ctx, requests)
}

// RegisterSchema makes a table's attributes and secondary indexes known to
// the optimizer.
func (e *Engine) RegisterSchema(schema optimizer.TableSchema) error {
	return e.optimizer.RegisterSchema(schema)
}

// Optimize exposes the optimizer directly for administrative inspection.
func (e *Engine) Optimize(req *queryflow.AccessRequest) *optimizer.OptimizationResult {
	return e.optimizer.Optimize(req)
}

// AnalyzePatterns returns the running query-pattern record for a table.
func (e *Engine) AnalyzePatterns(table string) optimizer.PatternRecord {
	return e.optimizer.AnalyzePatterns(table)
}

// CacheStats snapshots the two-tier cache counters.
func (e *Engine) CacheStats() cache.Statistics {
	return e.cache.Statistics()
}

// InvalidateCache removes every cached entry matching the glob pattern.
func (e *Engine) InvalidateCache(ctx context.Context, pattern string) {
	e.cache.RemoveByPattern(ctx, pattern)
}

// CircuitState snapshots the breaker for an operation key.
func (e *Engine) CircuitState(key string) breaker.Snapshot {
	return e.breakers.State(key)
}

// ResetCircuit forces the breaker for an operation key back to Closed.
func (e *Engine) ResetCircuit(key string) {
	e.breakers.Reset(key)
}

// CircuitStates snapshots every breaker created so far.
func (e *Engine) CircuitStates() map[string]breaker.Snapshot {
	return e.breakers.AllStates()
}
