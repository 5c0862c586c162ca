package couchbase

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

var _ domain.BackendFactory = (*Factory)(nil)

// Factory opens an independent SDK connection per bucket.
type Factory struct {
	cfg Config
	// views, when set, replaces the SDK view path for FetchPage.
	views domain.ViewQuerier

	logger *logger.Logger
	tracer trace.Tracer
}

// NewFactory creates a Factory. views may be nil to page through the SDK.
func NewFactory(cfg Config, views domain.ViewQuerier, logger *logger.Logger, tracer trace.Tracer) *Factory {
	return &Factory{
		cfg:    cfg,
		views:  views,
		logger: logger.With("component", "couchbase_factory"),
		tracer: tracer,
	}
}

// Open connects to target's bucket, retrying until the bucket is ready.
func (f *Factory) Open(ctx context.Context, target domain.BucketTarget) (domain.BucketBackend, error) {
	cluster, bucket, err := ConnectWithRetry(ctx, f.cfg, target, f.logger)
	if err != nil {
		return nil, err
	}

	b := newBucket(cluster, bucket, f.logger, f.tracer)
	if f.views != nil {
		b.querier = f.views
	}
	return b, nil
}
