package expiry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

// DefaultBatchSize is the page size used when none is configured.
const DefaultBatchSize = 2000

// ScanOptions are the validated run parameters for one bucket.
type ScanOptions struct {
	BatchSize int
	// DocumentLimit caps the number of documents dispatched. Nil means
	// unbounded; zero means no documents.
	DocumentLimit *int
	TTL           domain.TTL
}

// Validate rejects non-positive batch sizes, negative limits and TTLs out of
// range.
func (o ScanOptions) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidBatchSize, o.BatchSize)
	}
	if o.DocumentLimit != nil && *o.DocumentLimit < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDocumentLimit, *o.DocumentLimit)
	}
	return o.TTL.Validate()
}

// Scanner drives one bucket's scan: fetch a page, dispatch each identifier to
// the mutator in order, advance the skip offset, repeat. Pages for the same
// bucket are never in flight concurrently.
type Scanner struct {
	querier     domain.ViewQuerier
	mutator     DocumentMutator
	pageTimeout time.Duration
	clock       timeutil.Provider

	logger *logger.Logger
	tracer trace.Tracer
}

// NewScanner creates a Scanner. pageTimeout bounds each page fetch; zero
// disables the bound.
func NewScanner(
	querier domain.ViewQuerier,
	mutator DocumentMutator,
	pageTimeout time.Duration,
	clock timeutil.Provider,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Scanner {
	return &Scanner{
		querier:     querier,
		mutator:     mutator,
		pageTimeout: pageTimeout,
		clock:       clock,
		logger:      logger.With("component", "batch_scanner"),
		tracer:      tracer,
	}
}

// Scan pages through target's view until a short page is returned or the
// document limit is reached, recording every outcome on rep.
//
// A failed page fetch ends the scan with a *domain.QueryError; outcomes already
// recorded stand. Cancellation of ctx is honoured only between pages, in which
// case the error wraps domain.ErrScanInterrupted. Mutations run on a context
// detached from ctx's cancellation so a page is never abandoned half way.
func (s *Scanner) Scan(
	ctx context.Context,
	target domain.BucketTarget,
	opts ScanOptions,
	rep *Reporter,
) (domain.RunSummary, error) {
	lc := logger.NewLoggerContext(s.logger.With(
		"operation", "scan",
		"bucket", target.Name,
		"view", target.View,
	))
	ctx, span := s.tracer.Start(ctx, "batch_scanner.scan",
		trace.WithAttributes(
			attribute.String("bucket", target.Name),
			attribute.String("view", target.View),
			attribute.Int("batch_size", opts.BatchSize),
			attribute.Int64("ttl_seconds", opts.TTL.Seconds()),
		),
	)
	defer span.End()

	fail := func(err error, msg string) (domain.RunSummary, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		rep.Fail(err)
		return rep.Finalize(), err
	}

	if err := opts.Validate(); err != nil {
		return fail(err, "invalid scan options")
	}

	state, err := domain.NewScanState(target.Name, opts.DocumentLimit)
	if err != nil {
		return fail(err, "invalid scan options")
	}
	if remaining, bounded := state.Remaining(); bounded {
		lc.Add("document_limit", remaining)
		span.SetAttributes(attribute.Int("document_limit", remaining))
	}
	lc.Info(ctx, "Starting bucket scan", "ttl", opts.TTL.String())

	detached := context.WithoutCancel(ctx)
	for !state.Done() {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("%w: bucket %s stopped at skip %d: %w",
				domain.ErrScanInterrupted, target.Name, state.NextSkip(), err)
			lc.Warn(ctx, "Scan interrupted at page boundary", "dispatched", state.Dispatched())
			return fail(err, "scan interrupted")
		}

		req := state.NextPage(target.View, opts.BatchSize)
		ids, err := s.fetchPage(detached, req, rep)
		if err != nil {
			lc.Error(ctx, "Page fetch failed, abandoning bucket",
				"skip", req.Skip,
				"limit", req.Limit,
				"error", err,
			)
			return fail(err, "page fetch failed")
		}

		s.dispatch(detached, target.Name, ids, opts.TTL, rep)

		if err := state.Advance(req.Limit, len(ids)); err != nil {
			return fail(err, "inconsistent page bookkeeping")
		}
		progress := rep.Snapshot()
		lc.Debug(ctx, "Page processed",
			"skip", req.Skip,
			"limit", req.Limit,
			"returned", len(ids),
			"next_skip", state.NextSkip(),
			"processed", progress.Processed,
			"failed", progress.Failed,
		)
	}

	summary := rep.Finalize()
	span.SetAttributes(
		attribute.Int("pages", state.Pages()),
		attribute.Int("processed", summary.Processed),
		attribute.Int("failed", summary.Failed),
	)
	span.SetStatus(codes.Ok, "bucket scan completed")
	lc.Info(ctx, "Bucket scan completed",
		"pages", state.Pages(),
		"processed", summary.Processed,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.String(),
	)

	return summary, nil
}

// fetchPage runs one view query and drains its identifiers. The iterator never
// yields more than req.Limit identifiers to the caller.
func (s *Scanner) fetchPage(ctx context.Context, req domain.PageRequest, rep *Reporter) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "batch_scanner.fetch_page",
		trace.WithAttributes(
			attribute.String("bucket", req.Bucket),
			attribute.Int("skip", req.Skip),
			attribute.Int("limit", req.Limit),
		),
	)
	defer span.End()

	if s.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pageTimeout)
		defer cancel()
	}

	start := s.clock.Now()
	ids, err := s.drain(ctx, req)
	rep.RecordPageTiming(ctx, s.clock.Since(start))
	if err != nil {
		if !domain.IsQueryError(err) {
			err = domain.NewQueryError(req, 0, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "view query failed")
		return nil, err
	}

	span.AddEvent("page_fetched", trace.WithAttributes(attribute.Int("returned", len(ids))))
	return ids, nil
}

func (s *Scanner) drain(ctx context.Context, req domain.PageRequest) ([]string, error) {
	it, err := s.querier.FetchPage(ctx, req)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	ids := make([]string, 0, req.Limit)
	for len(ids) < req.Limit && it.Next() {
		ids = append(ids, it.ID())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Scanner) dispatch(ctx context.Context, bucket string, ids []string, ttl domain.TTL, rep *Reporter) {
	for _, id := range ids {
		rep.RecordOutcome(ctx, s.mutator.UpdateExpiry(ctx, bucket, id, ttl))
	}
}
