package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/internal/domain/history"
	"github.com/ahrav/cbexpiry/pkg/common"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

// ServiceConfig carries the timeouts and throttles shared by every bucket.
type ServiceConfig struct {
	PageTimeout        time.Duration
	OperationTimeout   time.Duration
	MutationsPerSecond float64
	// BucketConcurrency bounds how many buckets are scanned at once. Values
	// below one scan buckets one at a time.
	BucketConcurrency int
	// RunID labels the run in logs, history and detail records. A new ID is
	// generated when it is uuid.Nil.
	RunID uuid.UUID
}

// Service scans a set of buckets, each over its own connection, and merges
// the per-bucket summaries into one report.
type Service struct {
	backends domain.BackendFactory
	sink     domain.DetailSink
	history  history.Repository
	cfg      ServiceConfig
	clock    timeutil.Provider
	metrics  ScanMetrics

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService creates a Service. sink and repo may be nil.
func NewService(
	backends domain.BackendFactory,
	sink domain.DetailSink,
	repo history.Repository,
	cfg ServiceConfig,
	clock timeutil.Provider,
	metrics ScanMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Service {
	return &Service{
		backends: backends,
		sink:     sink,
		history:  repo,
		cfg:      cfg,
		clock:    clock,
		metrics:  metrics,
		logger:   logger.With("component", "expiry_service"),
		tracer:   tracer,
	}
}

// Run scans every target with opts. A failure in one bucket does not stop the
// others; the returned error joins every bucket-level error and the report
// always carries one summary per target, in target order.
func (s *Service) Run(ctx context.Context, targets []domain.BucketTarget, opts ScanOptions) (domain.RunReport, error) {
	runID := s.cfg.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	logger := s.logger.With("operation", "run", "run_id", runID.String())
	ctx, span := s.tracer.Start(ctx, "expiry_service.run",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.Int("bucket_count", len(targets)),
		),
	)
	defer span.End()

	report := domain.RunReport{RunID: runID.String(), Summaries: make([]domain.RunSummary, len(targets))}
	if err := opts.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid scan options")
		return report, err
	}
	if err := opts.TTL.ValidateAt(s.clock.Now()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid scan options")
		return report, err
	}

	var limiter *common.RateLimiter
	if s.cfg.MutationsPerSecond > 0 {
		limiter = common.NewRateLimiter(s.cfg.MutationsPerSecond, int(s.cfg.MutationsPerSecond))
		logger.Info(ctx, "Throttling document mutations", "mutations_per_second", limiter.Limit())
	}

	concurrency := s.cfg.BucketConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	// Errors are collected in the summaries; the group never cancels siblings.
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, target := range targets {
		g.Go(func() error {
			report.Summaries[i] = s.runBucket(ctx, runID, target, opts, limiter)
			return nil
		})
	}
	_ = g.Wait()

	totals := report.Totals()
	span.SetAttributes(
		attribute.Int("processed", totals.Processed),
		attribute.Int("failed", totals.Failed),
	)
	logger.Info(ctx, "Run finished",
		"buckets", totals.Buckets,
		"processed", totals.Processed,
		"failed", totals.Failed,
		"sink_errors", totals.SinkErrors,
	)

	err := report.Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "one or more buckets failed")
		return report, err
	}
	span.SetStatus(codes.Ok, "all buckets completed")
	return report, nil
}

func (s *Service) runBucket(
	ctx context.Context,
	runID uuid.UUID,
	target domain.BucketTarget,
	opts ScanOptions,
	limiter *common.RateLimiter,
) domain.RunSummary {
	logger := s.logger.With("run_id", runID.String(), "bucket", target.Name)
	rep := NewReporter(target, opts, s.sink, s.clock, s.metrics, s.logger)

	var summary domain.RunSummary
	_ = s.metrics.TrackScan(ctx, target.Name, func() error {
		backend, err := s.backends.Open(ctx, target)
		if err != nil {
			err = fmt.Errorf("failed to open bucket %s: %w", target.Name, err)
			rep.Fail(err)
			summary = rep.Finalize()
			return err
		}
		defer func() {
			if cerr := backend.Close(); cerr != nil {
				logger.Warn(ctx, "Failed to close bucket connection", "error", cerr)
			}
		}()

		mutator := NewMutator(backend, MutatorConfig{
			OperationTimeout: s.cfg.OperationTimeout,
			Limiter:          limiter,
		}, s.metrics, s.logger, s.tracer)
		scanner := NewScanner(backend, mutator, s.cfg.PageTimeout, s.clock, s.logger, s.tracer)

		summary, err = scanner.Scan(ctx, target, opts, rep)
		return err
	})

	logger.Info(ctx, fmt.Sprintf("Processing bucket %s took %.2f seconds", target.Name, summary.Elapsed.Seconds()),
		"status", string(summary.Status()),
		"processed", summary.Processed,
		"failed", summary.Failed,
	)

	s.saveHistory(ctx, runID, summary)
	return summary
}

func (s *Service) saveHistory(ctx context.Context, runID uuid.UUID, summary domain.RunSummary) {
	if s.history == nil {
		return
	}

	// The run may have been interrupted; history is still written.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.history.SaveRun(ctx, history.NewRunRecord(runID, summary)); err != nil {
		s.logger.Warn(ctx, "Failed to save run history",
			"bucket", summary.Bucket,
			"error", err,
		)
	}
}
