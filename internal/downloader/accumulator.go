package downloader

import (
	"context"
	"fmt"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
	"github.com/dhanyyudi/onemap-building-sg/internal/sink"
)

// accumulator buffers records of resolved postal codes and flushes them into
// the sink after every batchSize keys. It is only touched by the run loop, so
// the single consumer is the serialization point for sink writes.
type accumulator struct {
	sink      sink.Sink
	batchSize int

	held     []models.BuildingRecord
	keysHeld int
}

func newAccumulator(out sink.Sink, batchSize int) *accumulator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &accumulator{sink: out, batchSize: batchSize}
}

// Add buffers one resolved key and flushes when the batch boundary is reached.
// It returns the number of records flushed by this call, zero when the batch
// is still filling.
func (a *accumulator) Add(ctx context.Context, outcome models.KeyOutcome) (int, error) {
	a.held = append(a.held, outcome.Records...)
	a.keysHeld++

	if a.keysHeld < a.batchSize {
		return 0, nil
	}
	return a.Flush(ctx)
}

// Flush moves every held record into the sink and clears the buffer.
func (a *accumulator) Flush(ctx context.Context) (int, error) {
	flushed := len(a.held)
	if flushed > 0 {
		if err := a.sink.Flush(ctx, a.held); err != nil {
			return 0, fmt.Errorf("failed to flush batch: %w", err)
		}
	}
	a.held = nil
	a.keysHeld = 0
	return flushed, nil
}
