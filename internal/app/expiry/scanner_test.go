package expiry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

func pageShape(reqs []domain.PageRequest) [][2]int {
	out := make([][2]int, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, [2]int{r.Skip, r.Limit})
	}
	return out
}

func TestScanner_Scenarios(t *testing.T) {
	tests := []struct {
		name          string
		docs          int
		batch         int
		limit         *int
		wantPages     [][2]int
		wantProcessed int
	}{
		{
			name:          "unbounded ends on short page",
			docs:          5000,
			batch:         2000,
			wantPages:     [][2]int{{0, 2000}, {2000, 2000}, {4000, 2000}},
			wantProcessed: 5000,
		},
		{
			name:          "limit clamps last page and ends on quota",
			docs:          5000,
			batch:         2000,
			limit:         intPtr(3500),
			wantPages:     [][2]int{{0, 2000}, {2000, 1500}},
			wantProcessed: 3500,
		},
		{
			name:          "limit below batch uses limit for the only page",
			docs:          5000,
			batch:         2000,
			limit:         intPtr(150),
			wantPages:     [][2]int{{0, 150}},
			wantProcessed: 150,
		},
		{
			name:          "limit zero issues no query",
			docs:          5000,
			batch:         2000,
			limit:         intPtr(0),
			wantPages:     [][2]int{},
			wantProcessed: 0,
		},
		{
			name:          "exact multiple needs a trailing empty page",
			docs:          4000,
			batch:         2000,
			wantPages:     [][2]int{{0, 2000}, {2000, 2000}, {4000, 2000}},
			wantProcessed: 4000,
		},
		{
			name:          "limit larger than view ends on short page",
			docs:          300,
			batch:         200,
			limit:         intPtr(1000),
			wantPages:     [][2]int{{0, 200}, {200, 200}},
			wantProcessed: 300,
		},
		{
			name:          "empty view",
			docs:          0,
			batch:         2000,
			wantPages:     [][2]int{{0, 2000}},
			wantProcessed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMemoryBucket("b1", tt.docs)
			scanner, m := newTestScanner(t, b)
			target := mustTarget(t, "b1")
			opts := ScanOptions{BatchSize: tt.batch, DocumentLimit: tt.limit, TTL: 600}

			summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, nil, m))
			require.NoError(t, err)

			assert.Equal(t, tt.wantPages, pageShape(b.requested()))
			assert.Equal(t, tt.wantProcessed, summary.Processed)
			assert.Equal(t, 0, summary.Failed)
			assert.Equal(t, len(tt.wantPages), summary.Pages)
			assert.Equal(t, tt.wantProcessed, b.writtenCount())
			assert.Equal(t, domain.RunStatusCompleted, summary.Status())
		})
	}
}

func TestScanner_DispatchNeverExceedsLimit(t *testing.T) {
	for _, total := range []int{0, 1, 7, 20, 21} {
		for _, batch := range []int{1, 3, 7, 20} {
			for _, limit := range []*int{nil, intPtr(0), intPtr(1), intPtr(5), intPtr(20), intPtr(50)} {
				name := fmt.Sprintf("total=%d/batch=%d/limit=%v", total, batch, limit)
				if limit != nil {
					name = fmt.Sprintf("total=%d/batch=%d/limit=%d", total, batch, *limit)
				}
				t.Run(name, func(t *testing.T) {
					b := newMemoryBucket("b1", total)
					scanner, m := newTestScanner(t, b)
					target := mustTarget(t, "b1")
					opts := ScanOptions{BatchSize: batch, DocumentLimit: limit, TTL: 60}

					summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, nil, m))
					require.NoError(t, err)

					want := total
					if limit != nil {
						want = min(*limit, total)
					}
					assert.Equal(t, want, summary.Dispatched())

					// Skips are contiguous: each page starts where the previous one's
					// results ended.
					next := 0
					for i, req := range b.requested() {
						assert.Equal(t, next, req.Skip, "page %d", i)
						assert.LessOrEqual(t, req.Limit, batch)
						next += min(req.Limit, max(total-req.Skip, 0))
					}
				})
			}
		}
	}
}

func TestScanner_WriteErrorMidPageDoesNotAbort(t *testing.T) {
	b := newMemoryBucket("b1", 10)
	b.replaceErr["doc-00005"] = errors.New("temporary failure")

	scanner, m := newTestScanner(t, b)
	sink := &recordingSink{}
	target := mustTarget(t, "b1")
	opts := ScanOptions{BatchSize: 4, TTL: 120}

	summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, sink, m))
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{0, 4}, {4, 4}, {8, 4}}, pageShape(b.requested()))
	assert.Equal(t, 9, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, map[domain.FailureKind]int{domain.FailureWrite: 1}, summary.FailuresByKind)

	// Documents after the failure in the same page were still updated.
	assert.Equal(t, domain.TTL(120), b.doc("doc-00006").ttl)
	assert.Equal(t, domain.TTL(120), b.doc("doc-00007").ttl)
	assert.Equal(t, domain.TTL(3600), b.doc("doc-00005").ttl)

	require.Len(t, sink.records, 10)
	assert.False(t, sink.records[5].Success)
	assert.Equal(t, domain.FailureWrite, sink.records[5].Kind)
}

func TestScanner_NotFoundIsIsolated(t *testing.T) {
	b := newMemoryBucket("b1", 3)
	delete(b.docs, "doc-00001")

	scanner, m := newTestScanner(t, b)
	target := mustTarget(t, "b1")
	opts := ScanOptions{BatchSize: 10, TTL: 60}

	summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, nil, m))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.FailuresByKind[domain.FailureNotFound])
}

func TestScanner_ZeroTTLIsAMutation(t *testing.T) {
	b := newMemoryBucket("b1", 2)
	scanner, m := newTestScanner(t, b)
	sink := &recordingSink{}
	target := mustTarget(t, "b1")
	opts := ScanOptions{BatchSize: 10, TTL: domain.NeverExpire}

	summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, sink, m))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, domain.NeverExpire, summary.TTL)
	for _, id := range []string{"doc-00000", "doc-00001"} {
		d := b.doc(id)
		assert.Equal(t, domain.NeverExpire, d.ttl)
		assert.Equal(t, 1, d.writes)
	}
	require.Len(t, sink.records, 2)
	assert.True(t, sink.records[0].Success)
	assert.Equal(t, domain.NeverExpire, sink.records[0].TTL)
}

func TestScanner_QueryErrorIsFatalAndKeepsProgress(t *testing.T) {
	b := newMemoryBucket("b1", 5000)
	b.queryErrAt[1] = errors.New("connection reset")

	scanner, m := newTestScanner(t, b)
	target := mustTarget(t, "b1")
	opts := ScanOptions{BatchSize: 2000, TTL: 60}

	summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, nil, m))
	require.Error(t, err)

	var qe *domain.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 2000, qe.Skip)
	assert.Equal(t, 500, qe.StatusCode)

	assert.Equal(t, 2000, summary.Processed)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, domain.RunStatusFailed, summary.Status())
	assert.Len(t, b.requested(), 2, "no retry after a failed page")
}

// failingQuerier returns a page whose iterator fails after two ids.
type failingQuerier struct{ err error }

func (f failingQuerier) FetchPage(context.Context, domain.PageRequest) (domain.PageIterator, error) {
	return domain.NewSliceIterator([]string{"a", "b"}, f.err), nil
}

func TestScanner_IteratorErrorBecomesQueryError(t *testing.T) {
	b := newMemoryBucket("b1", 0)
	m := newTestMetrics(t)
	mutator := NewMutator(b, MutatorConfig{}, m, logger.Noop(), tracer)
	scanner := NewScanner(failingQuerier{err: errors.New("malformed row")}, mutator, 0, timeutil.Default(), logger.Noop(), tracer)

	target := mustTarget(t, "b1")
	opts := ScanOptions{BatchSize: 10, TTL: 60}
	summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, nil, m))

	assert.True(t, domain.IsQueryError(err))
	assert.Equal(t, 0, summary.Dispatched(), "a failed page dispatches nothing")
}

func TestScanner_CapsOverfullPage(t *testing.T) {
	b := newMemoryBucket("b1", 100)
	b.overfill = 5

	scanner, m := newTestScanner(t, b)
	target := mustTarget(t, "b1")
	opts := ScanOptions{BatchSize: 10, DocumentLimit: intPtr(10), TTL: 60}

	summary, err := scanner.Scan(context.Background(), target, opts, newTestReporter(t, target, opts, nil, m))
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Processed)
	assert.Equal(t, 10, b.writtenCount())
}

// cancellingMutator cancels the scan context after n mutations.
type cancellingMutator struct {
	inner  DocumentMutator
	cancel context.CancelFunc
	after  int
	calls  int
	ctxErr []error
}

func (c *cancellingMutator) UpdateExpiry(ctx context.Context, bucket, id string, ttl domain.TTL) domain.MutationOutcome {
	c.calls++
	if c.calls == c.after {
		c.cancel()
	}
	c.ctxErr = append(c.ctxErr, ctx.Err())
	return c.inner.UpdateExpiry(ctx, bucket, id, ttl)
}

func TestScanner_CancellationStopsAtPageBoundary(t *testing.T) {
	b := newMemoryBucket("b1", 50)
	m := newTestMetrics(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mutator := &cancellingMutator{
		inner:  NewMutator(b, MutatorConfig{}, m, logger.Noop(), tracer),
		cancel: cancel,
		after:  3,
	}
	scanner := NewScanner(b, mutator, 0, timeutil.Default(), logger.Noop(), tracer)

	target := mustTarget(t, "b1")
	opts := ScanOptions{BatchSize: 10, TTL: 60}
	summary, err := scanner.Scan(ctx, target, opts, newTestReporter(t, target, opts, nil, m))

	require.ErrorIs(t, err, domain.ErrScanInterrupted)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunStatusInterrupted, summary.Status())

	// The page in flight when the signal arrived was completed.
	assert.Equal(t, 10, summary.Processed)
	assert.Len(t, b.requested(), 1)
	for _, e := range mutator.ctxErr {
		assert.NoError(t, e)
	}
}

func TestScanner_InvalidOptions(t *testing.T) {
	b := newMemoryBucket("b1", 10)
	scanner, m := newTestScanner(t, b)
	target := mustTarget(t, "b1")

	tests := []struct {
		name string
		opts ScanOptions
		want error
	}{
		{name: "zero batch", opts: ScanOptions{BatchSize: 0}, want: domain.ErrInvalidBatchSize},
		{name: "negative limit", opts: ScanOptions{BatchSize: 10, DocumentLimit: intPtr(-3)}, want: domain.ErrInvalidDocumentLimit},
		{name: "ttl too large", opts: ScanOptions{BatchSize: 10, TTL: domain.MaxTTL + 1}, want: domain.ErrTTLOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scanner.Scan(context.Background(), target, tt.opts, newTestReporter(t, target, tt.opts, nil, m))
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, b.requested())
		})
	}
}
