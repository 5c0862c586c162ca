package expiry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/cbexpiry/internal/app/expiry/metrics"
	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

var tracer = tracenoop.NewTracerProvider().Tracer("test")

func newTestMetrics(t *testing.T) ScanMetrics {
	t.Helper()
	m, err := metrics.New(noop.NewMeterProvider())
	require.NoError(t, err)
	return m
}

func intPtr(v int) *int { return &v }

type storedDoc struct {
	body    string
	version uint64
	ttl     domain.TTL
	writes  int
}

// memoryBucket is an in-memory view plus document store. The view lists ids
// in insertion order.
type memoryBucket struct {
	mu sync.Mutex

	name string
	ids  []string
	docs map[string]*storedDoc

	pages []domain.PageRequest

	// queryErrAt fails the page with the given index (0-based).
	queryErrAt map[int]error
	getErr     map[string]error
	replaceErr map[string]error
	// conflicts is the number of version mismatches to inject per id.
	conflicts map[string]int
	// overfill makes FetchPage return more ids than requested.
	overfill int
	closed   bool
}

func newMemoryBucket(name string, n int) *memoryBucket {
	b := &memoryBucket{
		name:       name,
		docs:       make(map[string]*storedDoc, n),
		queryErrAt: make(map[int]error),
		getErr:     make(map[string]error),
		replaceErr: make(map[string]error),
		conflicts:  make(map[string]int),
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc-%05d", i)
		b.ids = append(b.ids, id)
		b.docs[id] = &storedDoc{body: `{"n":` + fmt.Sprint(i) + `}`, version: 1, ttl: 3600}
	}
	return b
}

func (b *memoryBucket) FetchPage(_ context.Context, req domain.PageRequest) (domain.PageIterator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := len(b.pages)
	b.pages = append(b.pages, req)
	if err, ok := b.queryErrAt[idx]; ok {
		return nil, domain.NewQueryError(req, 500, err)
	}

	if req.Skip >= len(b.ids) {
		return domain.NewSliceIterator(nil, nil), nil
	}
	end := min(req.Skip+req.Limit+b.overfill, len(b.ids))
	page := append([]string(nil), b.ids[req.Skip:end]...)
	return domain.NewSliceIterator(page, nil), nil
}

func (b *memoryBucket) Get(_ context.Context, _ string, id string) (domain.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.getErr[id]; ok {
		return domain.Document{}, err
	}
	d, ok := b.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return domain.Document{ID: id, Version: d.version, Body: d.body}, nil
}

func (b *memoryBucket) ReplaceTTL(_ context.Context, _ string, doc domain.Document, ttl domain.TTL) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.replaceErr[doc.ID]; ok {
		return err
	}
	d, ok := b.docs[doc.ID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	if b.conflicts[doc.ID] > 0 {
		b.conflicts[doc.ID]--
		d.version++
		return domain.ErrVersionMismatch
	}
	if doc.Version != 0 && doc.Version != d.version {
		return domain.ErrVersionMismatch
	}
	d.ttl = ttl
	d.version++
	d.writes++
	return nil
}

func (b *memoryBucket) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *memoryBucket) requested() []domain.PageRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.PageRequest(nil), b.pages...)
}

func (b *memoryBucket) doc(id string) storedDoc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.docs[id]
}

func (b *memoryBucket) writtenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, d := range b.docs {
		n += d.writes
	}
	return n
}

type memoryFactory struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	openErr map[string]error
	opened  []string
}

func (f *memoryFactory) Open(_ context.Context, target domain.BucketTarget) (domain.BucketBackend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, target.Name)
	if err, ok := f.openErr[target.Name]; ok {
		return nil, err
	}
	b, ok := f.buckets[target.Name]
	if !ok {
		return nil, errors.New("unknown bucket")
	}
	return b, nil
}

// recordingSink keeps every detail record; failEvery > 0 fails every n-th
// write.
type recordingSink struct {
	mu        sync.Mutex
	records   []domain.DetailRecord
	failEvery int
	writes    int
}

func (s *recordingSink) WriteDetail(_ context.Context, rec domain.DetailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.failEvery > 0 && s.writes%s.failEvery == 0 {
		return errors.New("disk full")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func newTestScanner(t *testing.T, b *memoryBucket) (*Scanner, ScanMetrics) {
	t.Helper()
	m := newTestMetrics(t)
	mutator := NewMutator(b, MutatorConfig{OperationTimeout: time.Second}, m, logger.Noop(), tracer)
	return NewScanner(b, mutator, time.Second, timeutil.Default(), logger.Noop(), tracer), m
}

func newTestReporter(t *testing.T, target domain.BucketTarget, opts ScanOptions, sink domain.DetailSink, m ScanMetrics) *Reporter {
	t.Helper()
	return NewReporter(target, opts, sink, timeutil.Default(), m, logger.Noop())
}

func mustTarget(t *testing.T, name string) domain.BucketTarget {
	t.Helper()
	target, err := domain.NewBucketTarget(name, "expiring", domain.Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	return target
}

func (b *memoryBucket) GetDesignDocument(context.Context, string, string) (domain.DesignDocument, error) {
	return domain.DesignDocument{}, domain.ErrDesignDocumentNotFound
}

func (b *memoryBucket) UpsertDesignDocument(context.Context, string, domain.DesignDocument) error {
	return nil
}
