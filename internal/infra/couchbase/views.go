package couchbase

import (
	"context"
	"fmt"

	"github.com/couchbase/gocb/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// sdkViewQuerier pages a view through the SDK's view service. Design
// document and view share the view's name.
type sdkViewQuerier struct {
	bucket *gocb.Bucket
	tracer trace.Tracer
}

func (q sdkViewQuerier) FetchPage(ctx context.Context, req domain.PageRequest) (domain.PageIterator, error) {
	ctx, span := q.tracer.Start(ctx, "couchbase_views.fetch_page",
		trace.WithAttributes(
			attribute.String("bucket", req.Bucket),
			attribute.String("view", req.View),
			attribute.Int("skip", req.Skip),
			attribute.Int("limit", req.Limit),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid page request")
		return nil, domain.NewQueryError(req, 0, err)
	}

	res, err := q.bucket.ViewQuery(req.View, req.View, &gocb.ViewOptions{
		ScanConsistency: gocb.ViewScanConsistencyRequestPlus,
		Skip:            uint32(req.Skip),
		Limit:           uint32(req.Limit),
		Namespace:       gocb.DesignDocumentNamespaceProduction,
		Timeout:         timeoutFrom(ctx),
		Context:         ctx,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "view query failed")
		return nil, domain.NewQueryError(req, 0, fmt.Errorf("view query: %w", err))
	}

	span.SetStatus(codes.Ok, "view query started")
	return &viewIterator{res: res, req: req}, nil
}

// viewIterator streams row ids out of a gocb.ViewResult.
type viewIterator struct {
	res *gocb.ViewResult
	req domain.PageRequest
	id  string
}

func (it *viewIterator) Next() bool {
	if !it.res.Next() {
		it.id = ""
		return false
	}
	it.id = it.res.Row().ID
	return true
}

func (it *viewIterator) ID() string { return it.id }

func (it *viewIterator) Err() error {
	if err := it.res.Err(); err != nil {
		return domain.NewQueryError(it.req, 0, err)
	}
	return nil
}

func (it *viewIterator) Close() error { return it.res.Close() }
