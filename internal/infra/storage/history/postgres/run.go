// Package postgres persists bucket run history in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/internal/domain/history"
	"github.com/ahrav/cbexpiry/internal/infra/storage"
)

// defaultDBAttributes defines standard OpenTelemetry attributes for PostgreSQL operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

var _ history.Repository = (*RunStore)(nil)

// RunStore implements history.Repository over the expiry_runs table.
type RunStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewRunStore creates a PostgreSQL-backed history.Repository.
func NewRunStore(pool *pgxpool.Pool, tracer trace.Tracer) *RunStore {
	return &RunStore{pool: pool, tracer: tracer}
}

const upsertRun = `
INSERT INTO expiry_runs (
    run_id, bucket, view_name, ttl_seconds, batch_size, document_limit, status,
    processed, failed, pages, sink_errors, started_at, elapsed_ms, error
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (run_id, bucket) DO UPDATE SET
    status      = EXCLUDED.status,
    processed   = EXCLUDED.processed,
    failed      = EXCLUDED.failed,
    pages       = EXCLUDED.pages,
    sink_errors = EXCLUDED.sink_errors,
    elapsed_ms  = EXCLUDED.elapsed_ms,
    error       = EXCLUDED.error,
    recorded_at = NOW()`

// SaveRun inserts the record, or updates the counters if the same run and
// bucket was saved before.
func (s *RunStore) SaveRun(ctx context.Context, rec history.RunRecord) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("method", "SaveRun"),
		attribute.String("run_id", rec.RunID.String()),
		attribute.String("bucket", rec.Bucket),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.expiry_runs.save", dbAttrs, func(ctx context.Context) error {
		var limit pgtype.Int4
		if rec.DocumentLimit != nil {
			limit = pgtype.Int4{Int32: int32(*rec.DocumentLimit), Valid: true}
		}

		_, err := s.pool.Exec(ctx, upsertRun,
			rec.RunID,
			rec.Bucket,
			rec.View,
			rec.TTLSeconds,
			int32(rec.BatchSize),
			limit,
			string(rec.Status),
			int32(rec.Processed),
			int32(rec.Failed),
			int32(rec.Pages),
			int32(rec.SinkErrors),
			pgtype.Timestamptz{Time: rec.StartedAt, Valid: true},
			rec.Elapsed.Milliseconds(),
			rec.Error,
		)
		if err != nil {
			return fmt.Errorf("RunStore.SaveRun: upsert error: %w", err)
		}
		return nil
	})
}

const listRuns = `
SELECT run_id, bucket, view_name, ttl_seconds, batch_size, document_limit, status,
       processed, failed, pages, sink_errors, started_at, elapsed_ms, error
FROM expiry_runs
WHERE $1 = '' OR bucket = $1
ORDER BY started_at DESC, bucket
LIMIT $2`

// ListRuns returns up to limit records, newest first. It returns
// history.ErrNoRuns when nothing matches.
func (s *RunStore) ListRuns(ctx context.Context, bucket string, limit int) ([]history.RunRecord, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("method", "ListRuns"),
		attribute.String("bucket", bucket),
		attribute.Int("limit", limit),
	)

	var records []history.RunRecord
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.expiry_runs.list", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, listRuns, bucket, int32(limit))
		if err != nil {
			return fmt.Errorf("RunStore.ListRuns: query error: %w", err)
		}

		records, err = pgx.CollectRows(rows, scanRun)
		if err != nil {
			return fmt.Errorf("RunStore.ListRuns: scan error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, history.ErrNoRuns
	}
	return records, nil
}

func scanRun(row pgx.CollectableRow) (history.RunRecord, error) {
	var (
		rec        history.RunRecord
		runID      pgtype.UUID
		batchSize  int32
		limit      pgtype.Int4
		status     string
		processed  int32
		failed     int32
		pages      int32
		sinkErrors int32
		startedAt  pgtype.Timestamptz
		elapsedMS  int64
	)
	if err := row.Scan(
		&runID,
		&rec.Bucket,
		&rec.View,
		&rec.TTLSeconds,
		&batchSize,
		&limit,
		&status,
		&processed,
		&failed,
		&pages,
		&sinkErrors,
		&startedAt,
		&elapsedMS,
		&rec.Error,
	); err != nil {
		return history.RunRecord{}, err
	}

	rec.RunID = uuid.UUID(runID.Bytes)
	rec.BatchSize = int(batchSize)
	if limit.Valid {
		l := int(limit.Int32)
		rec.DocumentLimit = &l
	}
	rec.Status = expiry.RunStatus(status)
	rec.Processed = int(processed)
	rec.Failed = int(failed)
	rec.Pages = int(pages)
	rec.SinkErrors = int(sinkErrors)
	rec.StartedAt = startedAt.Time
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return rec, nil
}
