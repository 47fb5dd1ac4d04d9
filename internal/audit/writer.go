package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"github.com/route-beacon/bgpmon-filter/internal/metrics"
	"go.uber.org/zap"
)

var zstdEncoder, _ = zstd.NewWriter(nil)

// Record is one matched envelope handed to the audit sink by the
// filter/dispatch worker. It carries just enough to reconstruct what
// matched and when — the audit log is a supplementary durability feature
// (spec's ambient/domain stack expansion), not part of the core match path.
type Record struct {
	Seq       uint64
	MatchedAt time.Time
	Axis      string // which filter.Axis produced the match: "as", "v4", "host", or "v6"
	Raw       []byte
}

// Writer persists batches of matched envelopes to the audit DB.
type Writer struct {
	pool          *pgxpool.Pool
	logger        *zap.Logger
	storeRaw      bool
	compressRaw   bool
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, storeRaw, compressRaw bool) *Writer {
	return &Writer{pool: pool, logger: logger, storeRaw: storeRaw, compressRaw: compressRaw}
}

// FlushBatch inserts a batch of matched envelopes into match_audit, skipping
// rows whose (event_id, matched_at) pair already exists. Returns the number of rows actually
// inserted.
func (w *Writer) FlushBatch(ctx context.Context, recs []Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for _, rec := range recs {
		eventID := computeEventID(rec.Raw)

		var rawBytes []byte
		if w.storeRaw {
			if w.compressRaw {
				rawBytes = zstdEncoder.EncodeAll(rec.Raw, nil)
			} else {
				rawBytes = rec.Raw
			}
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO match_audit (event_id, matched_at, seq, axis, raw, raw_compressed)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (event_id, matched_at) DO NOTHING`,
			eventID, rec.MatchedAt, rec.Seq, rec.Axis, rawBytes, w.compressRaw && w.storeRaw,
		)
		if err != nil {
			return 0, fmt.Errorf("insert match_audit: %w", err)
		}

		affected := tag.RowsAffected()
		inserted += affected
		if affected == 0 {
			metrics.AuditDedupConflictsTotal.Inc()
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	metrics.DBWriteDuration.WithLabelValues("insert").Observe(time.Since(start).Seconds())
	metrics.AuditRowsInsertedTotal.Add(float64(inserted))
	metrics.AuditBatchSize.Observe(float64(len(recs)))

	return inserted, nil
}
