package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// batchFlusher is the subset of *Writer the pipeline needs; tests supply a
// fake so the batching/triggering logic can be exercised without a
// database.
type batchFlusher interface {
	FlushBatch(ctx context.Context, recs []Record) (int64, error)
}

// Pipeline batches Records handed to it on a channel and flushes them to
// the audit DB on a size or time trigger, mirroring the teacher's history
// pipeline's batch/flush shape but driven by an in-process channel of
// matched envelopes instead of Kafka fetches.
type Pipeline struct {
	writer        batchFlusher
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
}

func NewPipeline(writer *Writer, batchSize, flushIntervalMs int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		writer:        writer,
		batchSize:     batchSize,
		flushInterval: time.Duration(flushIntervalMs) * time.Millisecond,
		logger:        logger,
	}
}

// Run consumes Records from in until in is closed or ctx is cancelled,
// flushing whenever the batch reaches batchSize or flushInterval elapses.
func (p *Pipeline) Run(ctx context.Context, in <-chan Record) {
	var batch []Record
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				p.flush(context.Background(), batch)
			}
			return

		case rec, ok := <-in:
			if !ok {
				if len(batch) > 0 {
					p.flush(context.Background(), batch)
				}
				return
			}
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				p.flush(ctx, batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(ctx, batch)
				batch = nil
			}
		}
	}
}

func (p *Pipeline) flush(ctx context.Context, batch []Record) {
	inserted, err := p.writer.FlushBatch(ctx, batch)
	if err != nil {
		p.logger.Error("audit batch flush failed", zap.Error(err), zap.Int("batch_size", len(batch)))
		return
	}
	p.logger.Debug("audit batch flushed",
		zap.Int("batch_size", len(batch)),
		zap.Int64("inserted", inserted),
		zap.Int64("deduped", int64(len(batch))-inserted),
	)
}
