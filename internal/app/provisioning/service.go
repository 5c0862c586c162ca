// Package provisioning creates the map/reduce view a run pages through when a
// bucket does not have it yet.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

// Outcome says what EnsureView did for a bucket.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeExists  Outcome = "exists"
	OutcomeFailed  Outcome = "failed"
)

// Result is the per-bucket provisioning result.
type Result struct {
	Bucket  string
	View    string
	Outcome Outcome
	Elapsed time.Duration
	Err     error
}

// Service ensures views exist. An existing design document is never
// modified.
type Service struct {
	backends expiry.BackendFactory
	clock    timeutil.Provider

	logger *logger.Logger
	tracer trace.Tracer
}

// NewService creates a provisioning Service.
func NewService(
	backends expiry.BackendFactory,
	clock timeutil.Provider,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Service {
	return &Service{
		backends: backends,
		clock:    clock,
		logger:   logger.With("component", "view_provisioner"),
		tracer:   tracer,
	}
}

// NewViewDefinition builds a definition for view, falling back to the
// default map function when mapFn is blank. An empty reduce is omitted.
func NewViewDefinition(view, mapFn, reduceFn string) (expiry.ViewDefinition, error) {
	if view == "" {
		return expiry.ViewDefinition{}, fmt.Errorf("view name is required")
	}
	if mapFn == "" {
		mapFn = expiry.DefaultMapFunction
	}
	return expiry.ViewDefinition{Name: view, Map: mapFn, Reduce: reduceFn}, nil
}

// EnsureViews provisions def on every target in order. A failure on one
// bucket is reported in its Result and does not stop the others; the returned
// error joins all failures.
func (s *Service) EnsureViews(ctx context.Context, targets []expiry.BucketTarget, def expiry.ViewDefinition) ([]Result, error) {
	results := make([]Result, 0, len(targets))
	var errs []error
	for _, target := range targets {
		res := s.ensureOnBucket(ctx, target, def)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (s *Service) ensureOnBucket(ctx context.Context, target expiry.BucketTarget, def expiry.ViewDefinition) Result {
	start := s.clock.Now()
	backend, err := s.backends.Open(ctx, target)
	if err != nil {
		return Result{
			Bucket:  target.Name,
			View:    def.Name,
			Outcome: OutcomeFailed,
			Elapsed: s.clock.Since(start),
			Err:     fmt.Errorf("failed to open bucket %s: %w", target.Name, err),
		}
	}
	defer backend.Close()

	res := s.EnsureView(ctx, backend, target.Name, def)
	res.Elapsed = s.clock.Since(start)
	s.logger.Info(ctx, fmt.Sprintf("Processing bucket '%s' took %.2f seconds", target.Name, res.Elapsed.Seconds()),
		"bucket", target.Name,
		"outcome", string(res.Outcome),
	)
	return res
}

// EnsureView creates def's design document on bucket unless one with the same
// name already exists.
func (s *Service) EnsureView(ctx context.Context, mgr expiry.ViewManager, bucket string, def expiry.ViewDefinition) Result {
	logger := s.logger.With("operation", "ensure_view", "bucket", bucket, "view", def.Name)
	ctx, span := s.tracer.Start(ctx, "view_provisioner.ensure_view",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("view", def.Name),
			attribute.Bool("has_reduce", def.Reduce != ""),
		),
	)
	defer span.End()

	res := Result{Bucket: bucket, View: def.Name}

	_, err := mgr.GetDesignDocument(ctx, bucket, def.Name)
	switch {
	case err == nil:
		span.AddEvent("design_document_exists")
		logger.Warn(ctx, fmt.Sprintf("Bucket '%s' already has a mapreduce view named '%s' - skipping", bucket, def.Name))
		res.Outcome = OutcomeExists
		return res
	case !errors.Is(err, expiry.ErrDesignDocumentNotFound):
		err = fmt.Errorf("failed to look up design document %s on bucket %s: %w", def.Name, bucket, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "design document lookup failed")
		logger.Error(ctx, "Design document lookup failed", "error", err)
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	ddoc := expiry.DesignDocument{
		Name:  def.Name,
		Views: map[string]expiry.ViewDefinition{def.Name: def},
	}
	if err := mgr.UpsertDesignDocument(ctx, bucket, ddoc); err != nil {
		err = fmt.Errorf("error inserting view '%s' for bucket '%s': %w", def.Name, bucket, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "design document insert failed")
		logger.Error(ctx, "Failed to insert view", "error", err)
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	span.SetStatus(codes.Ok, "view created")
	logger.Info(ctx, "View created")
	res.Outcome = OutcomeCreated
	return res
}
