package expiry

import (
	"errors"
	"time"
)

// RunStatus is the terminal state of a bucket scan.
type RunStatus string

const (
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// RunSummary is the per-bucket result of a scan.
type RunSummary struct {
	Bucket        string
	View          string
	TTL           TTL
	BatchSize     int
	DocumentLimit *int

	// Processed counts documents whose TTL was written; Failed counts
	// documents whose mutation failed for any reason.
	Processed      int
	Failed         int
	FailuresByKind map[FailureKind]int
	Retries        int

	Pages         int
	PageFetchTime time.Duration
	SinkErrors    int

	StartedAt time.Time
	Elapsed   time.Duration

	Err error
}

// Dispatched is the number of documents a mutation was attempted for.
func (s RunSummary) Dispatched() int { return s.Processed + s.Failed }

// Status derives the terminal state from Err.
func (s RunSummary) Status() RunStatus {
	switch {
	case s.Err == nil:
		return RunStatusCompleted
	case errors.Is(s.Err, ErrScanInterrupted):
		return RunStatusInterrupted
	default:
		return RunStatusFailed
	}
}

// RunReport aggregates the summaries of every bucket in one run.
type RunReport struct {
	RunID     string
	Summaries []RunSummary
}

// Totals sums counters across buckets.
type Totals struct {
	Buckets    int
	Processed  int
	Failed     int
	Pages      int
	SinkErrors int
	Elapsed    time.Duration
}

// Totals merges the per-bucket summaries. Elapsed is the longest bucket scan,
// since buckets may run concurrently.
func (r RunReport) Totals() Totals {
	var t Totals
	for _, s := range r.Summaries {
		t.Buckets++
		t.Processed += s.Processed
		t.Failed += s.Failed
		t.Pages += s.Pages
		t.SinkErrors += s.SinkErrors
		if s.Elapsed > t.Elapsed {
			t.Elapsed = s.Elapsed
		}
	}
	return t
}

// Err joins every bucket-level error.
func (r RunReport) Err() error {
	var errs []error
	for _, s := range r.Summaries {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}
