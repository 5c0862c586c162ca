// Package history models the persisted record of past bucket runs.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// ErrNoRuns is returned when no runs match a query.
var ErrNoRuns = errors.New("no runs recorded")

// RunRecord is one bucket's run as stored in the history database.
type RunRecord struct {
	RunID         uuid.UUID
	Bucket        string
	View          string
	TTLSeconds    int64
	BatchSize     int
	DocumentLimit *int
	Status        expiry.RunStatus
	Processed     int
	Failed        int
	Pages         int
	SinkErrors    int
	StartedAt     time.Time
	Elapsed       time.Duration
	Error         string
}

// NewRunRecord projects a finalized summary into a record.
func NewRunRecord(runID uuid.UUID, s expiry.RunSummary) RunRecord {
	rec := RunRecord{
		RunID:         runID,
		Bucket:        s.Bucket,
		View:          s.View,
		TTLSeconds:    s.TTL.Seconds(),
		BatchSize:     s.BatchSize,
		DocumentLimit: s.DocumentLimit,
		Status:        s.Status(),
		Processed:     s.Processed,
		Failed:        s.Failed,
		Pages:         s.Pages,
		SinkErrors:    s.SinkErrors,
		StartedAt:     s.StartedAt,
		Elapsed:       s.Elapsed,
	}
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}
	return rec
}

// Repository persists run records.
type Repository interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	// ListRuns returns the most recent runs first. An empty bucket matches
	// every bucket.
	ListRuns(ctx context.Context, bucket string, limit int) ([]RunRecord, error)
}
