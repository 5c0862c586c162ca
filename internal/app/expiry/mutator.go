// Package expiry implements the paged scan-and-mutate engine: the document
// mutator, the per-bucket scan controller, the run reporter and the
// multi-bucket service that ties them together.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

// maxMutationAttempts bounds the read-modify-write cycle: one retry after a
// version mismatch.
const maxMutationAttempts = 2

// MutatorConfig tunes a Mutator.
type MutatorConfig struct {
	// OperationTimeout bounds each individual store call. Zero disables the
	// bound.
	OperationTimeout time.Duration
	// Limiter throttles mutations. Nil means unthrottled.
	Limiter *common.RateLimiter
}

// DocumentMutator updates the TTL of one document.
type DocumentMutator interface {
	UpdateExpiry(ctx context.Context, bucket, id string, ttl domain.TTL) domain.MutationOutcome
}

var _ DocumentMutator = (*Mutator)(nil)

// Mutator performs a conditional read-modify-write of a document's TTL.
// Every path, including a panicking store, resolves to a MutationOutcome.
type Mutator struct {
	store  domain.DocumentStore
	cfg    MutatorConfig
	metric ScanMetrics

	logger *logger.Logger
	tracer trace.Tracer
}

// NewMutator creates a Mutator over the given store.
func NewMutator(
	store domain.DocumentStore,
	cfg MutatorConfig,
	metrics ScanMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Mutator {
	return &Mutator{
		store:  store,
		cfg:    cfg,
		metric: metrics,
		logger: logger.With("component", "document_mutator"),
		tracer: tracer,
	}
}

// UpdateExpiry sets the document's TTL to ttl. A TTL of zero is written as
// "never expire". On a version mismatch the read-modify-write cycle is retried
// once before the document is reported as precondition_failed.
func (m *Mutator) UpdateExpiry(ctx context.Context, bucket, id string, ttl domain.TTL) (outcome domain.MutationOutcome) {
	ctx, span := m.tracer.Start(ctx, "document_mutator.update_expiry",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("document_id", id),
			attribute.Int64("ttl_seconds", ttl.Seconds()),
		),
	)
	start := time.Now()
	attempts := 0
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Failed(id, ttl, attempts, domain.FailureWrite, fmt.Errorf("document store panicked: %v", r))
		}
		m.metric.ObserveMutationDuration(ctx, bucket, time.Since(start))
		if !outcome.Succeeded() {
			span.RecordError(outcome.Cause())
			span.SetStatus(codes.Error, string(outcome.Kind()))
		}
		span.End()
	}()

	if m.cfg.Limiter != nil {
		if err := m.cfg.Limiter.Wait(ctx); err != nil {
			return domain.Failed(id, ttl, attempts, domain.FailureRead, fmt.Errorf("rate limiter wait failed: %w", err))
		}
	}

	for attempts < maxMutationAttempts {
		attempts++

		doc, err := m.get(ctx, bucket, id)
		if err != nil {
			if errors.Is(err, domain.ErrDocumentNotFound) {
				return domain.Failed(id, ttl, attempts, domain.FailureNotFound, err)
			}
			return domain.Failed(id, ttl, attempts, domain.FailureRead, err)
		}

		err = m.replace(ctx, bucket, doc, ttl)
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "ttl updated")
			return domain.Success(id, ttl, attempts)
		case errors.Is(err, domain.ErrVersionMismatch):
			if attempts < maxMutationAttempts {
				m.metric.IncMutationRetries(ctx, bucket)
				span.AddEvent("version_mismatch_retry")
				m.logger.Debug(ctx, "Version mismatch, retrying", "bucket", bucket, "document_id", id)
				continue
			}
			return domain.Failed(id, ttl, attempts, domain.FailurePrecondition, err)
		case errors.Is(err, domain.ErrDocumentNotFound):
			return domain.Failed(id, ttl, attempts, domain.FailureNotFound, err)
		default:
			return domain.Failed(id, ttl, attempts, domain.FailureWrite, err)
		}
	}

	return domain.Failed(id, ttl, attempts, domain.FailurePrecondition, domain.ErrVersionMismatch)
}

func (m *Mutator) get(ctx context.Context, bucket, id string) (domain.Document, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	doc, err := m.store.Get(ctx, bucket, id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return doc, nil
}

func (m *Mutator) replace(ctx context.Context, bucket string, doc domain.Document, ttl domain.TTL) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.store.ReplaceTTL(ctx, bucket, doc, ttl); err != nil {
		return fmt.Errorf("failed to write document %s: %w", doc.ID, err)
	}
	return nil
}

func (m *Mutator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.cfg.OperationTimeout)
}
