// Package orchestrator groups, prioritizes, throttles and executes many
// access requests: grouped sub-batches with priority ordering, flat
// per-request parallelism, and a streaming mode that yields one chunk per
// sub-batch. Every execution path is wrapped by the circuit breaker keyed
// by table, and per-unit failures never abort sibling units.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"queryflow/internal/breaker"
	"queryflow/internal/queryflow"
)

// Config bounds batch execution.
type Config struct {
	// MaxBatchSize is the most requests one batch call may carry.
	MaxBatchSize int
	// OptimalSubBatchSize is the target size of each sub-batch.
	OptimalSubBatchSize int
	// MaxConcurrentSubBatches gates grouped sub-batches across ALL calls
	// sharing this orchestrator, so one large batch cannot starve others.
	MaxConcurrentSubBatches int64
	// MaxParallelism is the default gate width for flat-parallel mode.
	MaxParallelism int64
	// RetryCount / RetryDelay bound per-request retries on retryable errors.
	RetryCount int
	RetryDelay time.Duration

	// Priority scoring weights. Heuristic defaults, kept configurable.
	IndexedWeight int
	SizeBias      int

	// EstimatedLatencyPerRequest sizes a unit's estimated duration.
	EstimatedLatencyPerRequest time.Duration
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:               100,
		OptimalSubBatchSize:        25,
		MaxConcurrentSubBatches:    4,
		MaxParallelism:             16,
		RetryCount:                 2,
		RetryDelay:                 100 * time.Millisecond,
		IndexedWeight:              10,
		SizeBias:                   100,
		EstimatedLatencyPerRequest: 15 * time.Millisecond,
	}
}

// Runner executes a single planned request through the rest of the pipeline
// (cache, optimizer, backing store). The orchestrator adds breaker wrapping,
// batching and concurrency control on top.
type Runner interface {
	RunQuery(ctx context.Context, req *queryflow.AccessRequest) (*queryflow.QueryResult, error)
}

// BatchUnit is one table-homogeneous sub-batch. Units are created by
// partitioning, executed once, and discarded.
type BatchUnit struct {
	ID                string
	TableName         string
	Requests          []*queryflow.AccessRequest
	Priority          int
	EstimatedDuration time.Duration
}

// UnitFailure records one sub-batch that did not fully succeed.
type UnitFailure struct {
	UnitID    string `json:"unitId"`
	TableName string `json:"tableName"`
	Err       error  `json:"-"`
	Message   string `json:"message"`
}

// BatchResult aggregates a grouped-batch execution.
type BatchResult struct {
	TotalRequests      int              `json:"totalRequests"`
	SuccessfulRequests int              `json:"successfulRequests"`
	FailedRequests     int              `json:"failedRequests"`
	Items              []map[string]any `json:"items"`
	EstimatedCost      float64          `json:"estimatedCost"`
	Failures           []UnitFailure    `json:"failures,omitempty"`
	Duration           time.Duration    `json:"duration"`
}

// Orchestrator coordinates batch execution.
type Orchestrator struct {
	cfg      Config
	breakers *breaker.Registry
	runner   Runner
	logger   *zap.Logger

	// groupGate is shared across calls; it is the fixed, lower gate on
	// concurrently executing grouped sub-batches.
	groupGate *semaphore.Weighted
}

// New creates an orchestrator on top of a runner and a breaker registry.
func New(cfg Config, breakers *breaker.Registry, runner Runner, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = d.MaxBatchSize
	}
	if cfg.OptimalSubBatchSize <= 0 {
		cfg.OptimalSubBatchSize = d.OptimalSubBatchSize
	}
	if cfg.MaxConcurrentSubBatches <= 0 {
		cfg.MaxConcurrentSubBatches = d.MaxConcurrentSubBatches
	}
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = d.MaxParallelism
	}
	if cfg.EstimatedLatencyPerRequest <= 0 {
		cfg.EstimatedLatencyPerRequest = d.EstimatedLatencyPerRequest
	}
	return &Orchestrator{
		cfg:       cfg,
		breakers:  breakers,
		runner:    runner,
		logger:    logger,
		groupGate: semaphore.NewWeighted(cfg.MaxConcurrentSubBatches),
	}
}

// partition groups requests by table, splits each group into sub-batches of
// the optimal size, scores them, and returns the units sorted descending by
// priority. Smaller, index-friendly sub-batches run first.
func (o *Orchestrator) partition(requests []*queryflow.AccessRequest) []*BatchUnit {
	groups := make(map[string][]*queryflow.AccessRequest)
	var order []string
	for _, req := range requests {
		if _, ok := groups[req.TableName]; !ok {
			order = append(order, req.TableName)
		}
		groups[req.TableName] = append(groups[req.TableName], req)
	}

	var units []*BatchUnit
	for _, table := range order {
		group := groups[table]
		for start := 0; start < len(group); start += o.cfg.OptimalSubBatchSize {
			end := start + o.cfg.OptimalSubBatchSize
			if end > len(group) {
				end = len(group)
			}
			chunk := group[start:end]
			units = append(units, &BatchUnit{
				ID:                uuid.NewString(),
				TableName:         table,
				Requests:          chunk,
				Priority:          o.scoreUnit(chunk),
				EstimatedDuration: time.Duration(len(chunk)) * o.cfg.EstimatedLatencyPerRequest,
			})
		}
	}

	sort.SliceStable(units, func(i, j int) bool {
		return units[i].Priority > units[j].Priority
	})
	return units
}

// scoreUnit favors indexed requests and smaller sub-batches.
func (o *Orchestrator) scoreUnit(requests []*queryflow.AccessRequest) int {
	indexed := 0
	for _, req := range requests {
		if req.HasPartitionKey() {
			indexed++
		}
	}
	return o.cfg.IndexedWeight*indexed + (o.cfg.SizeBias - len(requests))
}

// unitOutcome is the result of executing one sub-batch.
type unitOutcome struct {
	successful int
	failed     int
	items      []map[string]any
	cost       float64
	err        error
}

// executeUnit runs a sub-batch through the breaker keyed by its table, with
// an empty-result fallback when the circuit is open.
func (o *Orchestrator) executeUnit(ctx context.Context, unit *BatchUnit) unitOutcome {
	var out unitOutcome

	primary := func(callCtx context.Context) error {
		for _, req := range unit.Requests {
			qr, err := o.runWithRetry(callCtx, req)
			if err != nil {
				out.err = err
				return err
			}
			out.successful++
			out.items = append(out.items, qr.Items...)
			out.cost += qr.Meta.ConsumedCapacity
		}
		return nil
	}
	fallback := func(_ context.Context, cause error) error {
		// Circuit open: degrade to an empty result for the whole unit.
		out.err = cause
		return nil
	}

	if err := o.breakers.Execute(ctx, unit.TableName, primary, fallback); err != nil {
		out.err = err
	}
	out.failed = len(unit.Requests) - out.successful
	if out.err != nil {
		o.logger.Warn("sub-batch did not fully succeed",
			zap.String("unit", unit.ID),
			zap.String("table", unit.TableName),
			zap.Int("failed", out.failed),
			zap.Error(out.err),
		)
	}
	return out
}

// runWithRetry retries a single request on retryable errors with a linear
// backoff bounded by RetryCount.
func (o *Orchestrator) runWithRetry(ctx context.Context, req *queryflow.AccessRequest) (*queryflow.QueryResult, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * o.cfg.RetryDelay):
			}
		}
		qr, err := o.runner.RunQuery(ctx, req)
		if err == nil {
			return qr, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, lastErr
}
