package expiry

import (
	"context"
	"io"
)

// Document is an opaque stored document together with the version token the
// store uses for optimistic concurrency. A zero Version means the store did
// not supply one and writes are unconditional.
type Document struct {
	ID      string
	Version uint64
	Body    any
}

// DocumentStore reads and rewrites single documents.
type DocumentStore interface {
	// Get returns ErrDocumentNotFound when the document does not exist.
	Get(ctx context.Context, bucket, id string) (Document, error)

	// ReplaceTTL writes doc back with the given TTL. When doc.Version is
	// non-zero the write is conditional and fails with ErrVersionMismatch if
	// the document changed since it was read.
	ReplaceTTL(ctx context.Context, bucket string, doc Document, ttl TTL) error
}

// BucketBackend is everything a run needs from one bucket's connection.
type BucketBackend interface {
	ViewQuerier
	DocumentStore
	ViewManager
	io.Closer
}

// BackendFactory opens an independent connection for a bucket.
type BackendFactory interface {
	Open(ctx context.Context, target BucketTarget) (BucketBackend, error)
}

// ViewDefinition is a map/reduce view. Reduce may be empty.
type ViewDefinition struct {
	Name   string
	Map    string
	Reduce string
}

// DefaultMapFunction emits every document's id.
const DefaultMapFunction = "function (doc, meta) { emit(meta.id, null); }"

// DesignDocument groups views. Provisioned design documents are named after
// their single view.
type DesignDocument struct {
	Name  string
	Views map[string]ViewDefinition
}

// ViewManager reads and writes design documents.
type ViewManager interface {
	// GetDesignDocument returns ErrDesignDocumentNotFound when absent.
	GetDesignDocument(ctx context.Context, bucket, name string) (DesignDocument, error)
	UpsertDesignDocument(ctx context.Context, bucket string, ddoc DesignDocument) error
}

// DetailRecord is one line of per-document detail output.
type DetailRecord struct {
	Bucket  string
	ID      string
	TTL     TTL
	Success bool
	Kind    FailureKind
	Cause   string
}

// NewDetailRecord projects an outcome into a detail record.
func NewDetailRecord(bucket string, o MutationOutcome) DetailRecord {
	r := DetailRecord{Bucket: bucket, ID: o.ID, TTL: o.TTL, Success: o.Succeeded()}
	if !r.Success {
		r.Kind = o.Kind()
		if o.Cause() != nil {
			r.Cause = o.Cause().Error()
		}
	}
	return r
}

// DetailSink is an append-only destination for per-document detail.
// Implementations must be safe for concurrent use.
type DetailSink interface {
	WriteDetail(ctx context.Context, rec DetailRecord) error
	Close() error
}
