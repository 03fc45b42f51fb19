package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"queryflow/internal/queryflow"
)

// ExecuteBatch runs a request set in grouped-batch mode: validate, group by
// table, split into prioritized sub-batches, and execute them concurrently
// up to the shared sub-batch gate. A failing sub-batch never aborts its
// siblings; failures are aggregated next to successes.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, requests []*queryflow.AccessRequest) (*BatchResult, error) {
	if err := o.validateBatch(requests); err != nil {
		return nil, err
	}

	units := o.partition(requests)
	o.logger.Debug("batch partitioned",
		zap.Int("requests", len(requests)),
		zap.Int("units", len(units)),
	)

	start := time.Now()
	result := &BatchResult{TotalRequests: len(requests)}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, unit := range units {
		// Once cancellation is signaled, in-flight units finish but no new
		// unit is started.
		if ctx.Err() != nil {
			mu.Lock()
			result.FailedRequests += len(unit.Requests)
			result.Failures = append(result.Failures, UnitFailure{
				UnitID:    unit.ID,
				TableName: unit.TableName,
				Err:       ctx.Err(),
				Message:   "batch cancelled before sub-batch started",
			})
			mu.Unlock()
			continue
		}
		if err := o.groupGate.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.FailedRequests += len(unit.Requests)
			result.Failures = append(result.Failures, UnitFailure{
				UnitID:    unit.ID,
				TableName: unit.TableName,
				Err:       err,
				Message:   "batch cancelled while waiting for the sub-batch gate",
			})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(unit *BatchUnit) {
			defer wg.Done()
			defer o.groupGate.Release(1)

			out := o.executeUnit(ctx, unit)

			mu.Lock()
			defer mu.Unlock()
			result.SuccessfulRequests += out.successful
			result.FailedRequests += out.failed
			result.Items = append(result.Items, out.items...)
			result.EstimatedCost += out.cost
			if out.err != nil {
				result.Failures = append(result.Failures, UnitFailure{
					UnitID:    unit.ID,
					TableName: unit.TableName,
					Err:       out.err,
					Message:   out.err.Error(),
				})
			}
		}(unit)
	}

	wg.Wait()
	result.Duration = time.Since(start)
	return result, nil
}
