package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"queryflow/internal/queryflow"
)

// RequestFailure records one request that failed in flat-parallel mode.
type RequestFailure struct {
	Index     int    `json:"index"`
	TableName string `json:"tableName"`
	Err       error  `json:"-"`
	Message   string `json:"message"`
}

// ParallelResult aggregates a flat-parallel execution. Items carry no
// ordering guarantee.
type ParallelResult struct {
	TotalRequests  int              `json:"totalRequests"`
	Successful     int              `json:"successful"`
	Failed         int              `json:"failed"`
	Items          []map[string]any `json:"items"`
	MeanExecMillis float64          `json:"meanExecMillis"`
	Failures       []RequestFailure `json:"failures,omitempty"`
	Duration       time.Duration    `json:"duration"`
}

// ExecuteParallel dispatches every request independently under a bounded
// concurrency gate. maxConcurrency <= 0 falls back to the configured
// default width. A failing request becomes an explicit failure entry; it
// never aborts the others.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, requests []*queryflow.AccessRequest, maxConcurrency int64) (*ParallelResult, error) {
	if err := o.validateBatch(requests); err != nil {
		return nil, err
	}

	width := maxConcurrency
	if width <= 0 {
		width = o.cfg.MaxParallelism
	}
	gate := semaphore.NewWeighted(width)

	start := time.Now()
	result := &ParallelResult{TotalRequests: len(requests)}

	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		totalMillis int64
	)
	record := func(index int, req *queryflow.AccessRequest, qr *queryflow.QueryResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, RequestFailure{
				Index:     index,
				TableName: req.TableName,
				Err:       err,
				Message:   err.Error(),
			})
			return
		}
		result.Successful++
		result.Items = append(result.Items, qr.Items...)
		totalMillis += qr.Meta.ExecMillis
	}

	for i, req := range requests {
		if ctx.Err() != nil {
			record(i, req, nil, ctx.Err())
			continue
		}
		if err := gate.Acquire(ctx, 1); err != nil {
			record(i, req, nil, err)
			continue
		}

		wg.Add(1)
		go func(index int, req *queryflow.AccessRequest) {
			defer wg.Done()
			defer gate.Release(1)

			var qr *queryflow.QueryResult
			err := o.breakers.Execute(ctx, req.TableName, func(callCtx context.Context) error {
				var runErr error
				qr, runErr = o.runWithRetry(callCtx, req)
				return runErr
			}, nil)
			record(index, req, qr, err)
		}(i, req)
	}

	wg.Wait()
	if result.Successful > 0 {
		result.MeanExecMillis = float64(totalMillis) / float64(result.Successful)
	}
	result.Duration = time.Since(start)
	return result, nil
}
