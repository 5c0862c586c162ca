package expiry

import (
	"context"
	"sync"
	"time"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

// Reporter accumulates the counters for one bucket's scan and forwards
// per-document detail to an optional sink. Counters only ever grow.
type Reporter struct {
	mu      sync.Mutex
	summary domain.RunSummary
	started time.Time
	final   bool

	sink    domain.DetailSink
	clock   timeutil.Provider
	metrics ScanMetrics
	logger  *logger.Logger
}

// NewReporter starts the clock for a bucket's run. sink may be nil, in which
// case no detail records are built.
func NewReporter(
	target domain.BucketTarget,
	opts ScanOptions,
	sink domain.DetailSink,
	clock timeutil.Provider,
	metrics ScanMetrics,
	logger *logger.Logger,
) *Reporter {
	now := clock.Now()
	return &Reporter{
		summary: domain.RunSummary{
			Bucket:         target.Name,
			View:           target.View,
			TTL:            opts.TTL,
			BatchSize:      opts.BatchSize,
			DocumentLimit:  opts.DocumentLimit,
			FailuresByKind: make(map[domain.FailureKind]int),
			StartedAt:      now,
		},
		started: now,
		sink:    sink,
		clock:   clock,
		metrics: metrics,
		logger:  logger.With("component", "run_reporter", "bucket", target.Name),
	}
}

// RecordOutcome counts a mutation outcome and, when a sink is configured,
// writes its detail record. Sink failures are logged and counted.
func (r *Reporter) RecordOutcome(ctx context.Context, o domain.MutationOutcome) {
	r.mu.Lock()
	if o.Succeeded() {
		r.summary.Processed++
	} else {
		r.summary.Failed++
		r.summary.FailuresByKind[o.Kind()]++
	}
	if o.Attempts > 1 {
		r.summary.Retries += o.Attempts - 1
	}
	bucket := r.summary.Bucket
	r.mu.Unlock()

	if o.Succeeded() {
		r.metrics.IncDocumentsUpdated(ctx, bucket)
	} else {
		r.metrics.IncDocumentsFailed(ctx, bucket, o.Kind())
		r.logger.Warn(ctx, "Document update failed",
			"document_id", o.ID,
			"kind", string(o.Kind()),
			"error", o.Cause(),
		)
	}

	if r.sink == nil {
		return
	}

	if err := r.sink.WriteDetail(ctx, domain.NewDetailRecord(bucket, o)); err != nil {
		r.mu.Lock()
		r.summary.SinkErrors++
		r.mu.Unlock()
		r.metrics.IncSinkErrors(ctx, bucket)
		r.logger.Warn(ctx, "Failed to write detail record", "document_id", o.ID, "error", err)
	}
}

// RecordPageTiming adds one fetched page and its fetch latency.
func (r *Reporter) RecordPageTiming(ctx context.Context, d time.Duration) {
	r.mu.Lock()
	r.summary.Pages++
	r.summary.PageFetchTime += d
	bucket := r.summary.Bucket
	r.mu.Unlock()

	r.metrics.IncPagesFetched(ctx, bucket)
	r.metrics.ObservePageFetchDuration(ctx, bucket, d)
}

// Fail attaches the error that ended the scan. The first error wins.
func (r *Reporter) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary.Err == nil {
		r.summary.Err = err
	}
}

// Snapshot returns the counters so far without finalizing.
func (r *Reporter) Snapshot() domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copySummary()
}

// Finalize stamps the elapsed time and returns the summary. Later calls return
// the same summary.
func (r *Reporter) Finalize() domain.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.final {
		r.summary.Elapsed = r.clock.Since(r.started)
		r.final = true
	}
	return r.copySummary()
}

func (r *Reporter) copySummary() domain.RunSummary {
	s := r.summary
	s.FailuresByKind = make(map[domain.FailureKind]int, len(r.summary.FailuresByKind))
	for k, v := range r.summary.FailuresByKind {
		s.FailuresByKind[k] = v
	}
	return s
}
