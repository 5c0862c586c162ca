package couchbase

import (
	"context"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

var _ domain.BucketBackend = (*Bucket)(nil)

// Bucket is one bucket's SDK connection. It owns its cluster handle.
type Bucket struct {
	name       string
	cluster    *gocb.Cluster
	bucket     *gocb.Bucket
	collection *gocb.Collection

	// querier serves FetchPage. It is the SDK view path unless a REST
	// querier was supplied.
	querier domain.ViewQuerier

	logger *logger.Logger
	tracer trace.Tracer
}

func newBucket(cluster *gocb.Cluster, b *gocb.Bucket, logger *logger.Logger, tracer trace.Tracer) *Bucket {
	bk := &Bucket{
		name:       b.Name(),
		cluster:    cluster,
		bucket:     b,
		collection: b.DefaultCollection(),
		logger:     logger.With("component", "couchbase_bucket", "bucket", b.Name()),
		tracer:     tracer,
	}
	bk.querier = sdkViewQuerier{bucket: b, tracer: tracer}
	return bk
}

// FetchPage runs one page of the view with request_plus consistency.
func (b *Bucket) FetchPage(ctx context.Context, req domain.PageRequest) (domain.PageIterator, error) {
	return b.querier.FetchPage(ctx, req)
}

// Get reads the raw document together with its CAS.
func (b *Bucket) Get(ctx context.Context, _ string, id string) (domain.Document, error) {
	ctx, span := b.tracer.Start(ctx, "couchbase_bucket.get",
		trace.WithAttributes(
			attribute.String("bucket", b.name),
			attribute.String("document_id", id),
		),
	)
	defer span.End()

	res, err := b.collection.Get(id, &gocb.GetOptions{
		Transcoder: passthroughTranscoder{},
		Timeout:    timeoutFrom(ctx),
		Context:    ctx,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		return domain.Document{}, translateKVError(err)
	}

	var raw rawDocument
	if err := res.Content(&raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return domain.Document{}, fmt.Errorf("decoding document %s: %w", id, err)
	}

	return domain.Document{ID: id, Version: uint64(res.Cas()), Body: raw}, nil
}

// ReplaceTTL writes the document back unchanged with the new expiry. A
// non-zero doc.Version makes the write conditional on the CAS.
func (b *Bucket) ReplaceTTL(ctx context.Context, _ string, doc domain.Document, ttl domain.TTL) error {
	ctx, span := b.tracer.Start(ctx, "couchbase_bucket.replace_ttl",
		trace.WithAttributes(
			attribute.String("bucket", b.name),
			attribute.String("document_id", doc.ID),
			attribute.Int64("ttl_seconds", ttl.Seconds()),
			attribute.Bool("cas_guarded", doc.Version != 0),
		),
	)
	defer span.End()

	raw, ok := doc.Body.(rawDocument)
	if !ok {
		err := fmt.Errorf("document %s was not read through this bucket (body %T)", doc.ID, doc.Body)
		span.RecordError(err)
		span.SetStatus(codes.Error, "foreign document body")
		return err
	}

	expiry, err := ttl.Duration()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid ttl")
		return err
	}

	_, err = b.collection.Replace(doc.ID, raw, &gocb.ReplaceOptions{
		Cas:        gocb.Cas(doc.Version),
		Expiry:     expiry,
		Transcoder: passthroughTranscoder{},
		Timeout:    timeoutFrom(ctx),
		Context:    ctx,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace failed")
		return translateKVError(err)
	}

	span.SetStatus(codes.Ok, "ttl replaced")
	return nil
}

// GetDesignDocument reads a production design document.
func (b *Bucket) GetDesignDocument(ctx context.Context, _ string, name string) (domain.DesignDocument, error) {
	ddoc, err := b.bucket.ViewIndexes().GetDesignDocument(name, gocb.DesignDocumentNamespaceProduction,
		&gocb.GetDesignDocumentOptions{Timeout: timeoutFrom(ctx), Context: ctx})
	if err != nil {
		return domain.DesignDocument{}, translateViewIndexError(err)
	}

	out := domain.DesignDocument{Name: name, Views: make(map[string]domain.ViewDefinition, len(ddoc.Views))}
	for viewName, v := range ddoc.Views {
		out.Views[viewName] = domain.ViewDefinition{Name: viewName, Map: v.Map, Reduce: v.Reduce}
	}
	return out, nil
}

// UpsertDesignDocument publishes ddoc to the production namespace.
func (b *Bucket) UpsertDesignDocument(ctx context.Context, _ string, ddoc domain.DesignDocument) error {
	views := make(map[string]gocb.View, len(ddoc.Views))
	for name, v := range ddoc.Views {
		views[name] = gocb.View{Map: v.Map, Reduce: v.Reduce}
	}

	err := b.bucket.ViewIndexes().UpsertDesignDocument(
		gocb.DesignDocument{Name: ddoc.Name, Views: views},
		gocb.DesignDocumentNamespaceProduction,
		&gocb.UpsertDesignDocumentOptions{Timeout: timeoutFrom(ctx), Context: ctx},
	)
	if err != nil {
		return fmt.Errorf("upserting design document %s: %w", ddoc.Name, err)
	}
	return nil
}

// Close releases the cluster connection.
func (b *Bucket) Close() error {
	if err := b.cluster.Close(nil); err != nil {
		return fmt.Errorf("closing cluster for bucket %s: %w", b.name, err)
	}
	return nil
}

// timeoutFrom converts a context deadline to an SDK timeout; zero lets the
// SDK apply its configured default.
func timeoutFrom(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return time.Millisecond
}
