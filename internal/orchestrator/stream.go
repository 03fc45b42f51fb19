package orchestrator

import (
	"context"

	"queryflow/internal/queryflow"
)

// Chunk is one sub-batch's outcome, yielded as it completes.
type Chunk struct {
	UnitID     string           `json:"unitId"`
	TableName  string           `json:"tableName"`
	Items      []map[string]any `json:"items"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Err        error            `json:"-"`
}

// StreamBatch executes the grouped sub-batches sequentially in priority
// order and yields one Chunk per sub-batch, so a caller can start consuming
// before the whole set finishes. The sequence is finite and not restartable.
// Once ctx is cancelled no further sub-batch starts and the channel closes.
func (o *Orchestrator) StreamBatch(ctx context.Context, requests []*queryflow.AccessRequest) (<-chan Chunk, error) {
	if err := o.validateBatch(requests); err != nil {
		return nil, err
	}
	units := o.partition(requests)

	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for _, unit := range units {
			if ctx.Err() != nil {
				return
			}
			out := o.executeUnit(ctx, unit)
			chunk := Chunk{
				UnitID:     unit.ID,
				TableName:  unit.TableName,
				Items:      out.items,
				Successful: out.successful,
				Failed:     out.failed,
				Err:        out.err,
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
