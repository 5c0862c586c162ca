package expiry

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL(t *testing.T) {
	ttl, err := TTLFromMinutes(10)
	require.NoError(t, err)
	assert.Equal(t, TTL(600), ttl)

	ttl, err = TTLFromMinutes(0)
	require.NoError(t, err)
	assert.True(t, ttl.IsNever())

	assert.Equal(t, "0s (never expires)", NeverExpire.String())
	assert.Equal(t, "-60s", TTL(-60).String())

	d, err := TTL(90).Duration()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestTTLFromMinutes_Bounds(t *testing.T) {
	maxMinutes := int64(MaxTTL / 60)

	tests := []struct {
		name    string
		minutes int64
		want    TTL
		wantErr bool
	}{
		{name: "max", minutes: maxMinutes, want: MaxTTL},
		{name: "negative max", minutes: -maxMinutes, want: -MaxTTL},
		{name: "one past max", minutes: maxMinutes + 1, wantErr: true},
		{name: "wraps int64 duration", minutes: 200_000_000, wantErr: true},
		{name: "wraps int64 seconds", minutes: 1 << 58, wantErr: true},
		{name: "very negative", minutes: -(1 << 58), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TTLFromMinutes(tt.minutes)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTTLOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			d, err := got.Duration()
			require.NoError(t, err)
			assert.Equal(t, tt.want >= 0, d >= 0, "duration keeps the sign")
		})
	}
}

func TestTTL_DurationRejectsOutOfRange(t *testing.T) {
	_, err := (MaxTTL + 1).Duration()
	assert.ErrorIs(t, err, ErrTTLOutOfRange)
	_, err = TTL(math.MaxInt64).Duration()
	assert.ErrorIs(t, err, ErrTTLOutOfRange)
}

func TestTTL_ValidateAt(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ttl     TTL
		now     time.Time
		wantErr bool
	}{
		{name: "max from today", ttl: MaxTTL, now: now},
		{name: "relative ttl late in the range", ttl: 60, now: time.Unix(math.MaxUint32-10, 0)},
		{name: "absolute past 2106", ttl: 31 * 24 * 60 * 60, now: time.Unix(math.MaxUint32-10, 0), wantErr: true},
		{name: "max from 2080", ttl: MaxTTL, now: time.Date(2080, 1, 1, 0, 0, 0, 0, time.UTC), wantErr: true},
		{name: "over max", ttl: MaxTTL + 1, now: now, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ttl.ValidateAt(tt.now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTTLOutOfRange)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewBucketTarget(t *testing.T) {
	target, err := NewBucketTarget("sessions", "expiring", Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "sessions/expiring", target.String())

	_, err = NewBucketTarget("", "v", Credentials{})
	assert.Error(t, err)
	_, err = NewBucketTarget("b", "", Credentials{})
	assert.Error(t, err)
}

func TestPageRequest_Validate(t *testing.T) {
	assert.NoError(t, PageRequest{Bucket: "b", View: "v", Skip: 0, Limit: 1}.Validate())
	assert.ErrorIs(t, PageRequest{Bucket: "b", View: "v", Skip: -1, Limit: 1}.Validate(), ErrInvalidPageRequest)
	assert.ErrorIs(t, PageRequest{Bucket: "b", View: "v", Limit: 0}.Validate(), ErrInvalidPageRequest)
	assert.Error(t, PageRequest{Limit: 1}.Validate())
}

func TestSliceIterator(t *testing.T) {
	boom := errors.New("boom")
	it := NewSliceIterator([]string{"a", "b"}, boom)

	var got []string
	for it.Next() {
		assert.NoError(t, it.Err())
		got = append(got, it.ID())
	}
	assert.Equal(t, []string{"a", "b"}, got)
	assert.ErrorIs(t, it.Err(), boom)
	assert.Equal(t, "", it.ID())
	assert.NoError(t, it.Close())
}

func TestQueryError(t *testing.T) {
	cause := errors.New("connection refused")
	qe := NewQueryError(PageRequest{Bucket: "b", View: "v", Skip: 4000, Limit: 2000}, 503, cause)

	wrapped := fmt.Errorf("scan: %w", qe)
	assert.True(t, IsQueryError(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, qe.Error(), "skip=4000")
	assert.Contains(t, qe.Error(), "status=503")
	assert.False(t, IsQueryError(cause))
}

func TestMutationOutcome(t *testing.T) {
	ok := Success("doc-1", NeverExpire, 1)
	assert.True(t, ok.Succeeded())
	assert.Empty(t, ok.Kind())
	assert.Contains(t, ok.String(), "never expires")

	cause := errors.New("rejected")
	bad := Failed("doc-2", TTL(60), 2, FailureWrite, cause)
	assert.False(t, bad.Succeeded())
	assert.Equal(t, FailureWrite, bad.Kind())
	assert.ErrorIs(t, bad.Cause(), cause)

	rec := NewDetailRecord("b1", bad)
	assert.Equal(t, DetailRecord{Bucket: "b1", ID: "doc-2", TTL: 60, Kind: FailureWrite, Cause: "rejected"}, rec)

	rec = NewDetailRecord("b1", ok)
	assert.True(t, rec.Success)
	assert.Equal(t, NeverExpire, rec.TTL)
}

func TestRunSummaryStatusAndTotals(t *testing.T) {
	interrupted := RunSummary{Bucket: "a", Processed: 10, Failed: 1, Elapsed: time.Second,
		Err: fmt.Errorf("bucket a: %w", ErrScanInterrupted)}
	failed := RunSummary{Bucket: "b", Processed: 5, Pages: 2, Elapsed: 3 * time.Second,
		Err: NewQueryError(PageRequest{Bucket: "b"}, 0, errors.New("down"))}
	done := RunSummary{Bucket: "c", Processed: 7, SinkErrors: 2}

	assert.Equal(t, RunStatusInterrupted, interrupted.Status())
	assert.Equal(t, RunStatusFailed, failed.Status())
	assert.Equal(t, RunStatusCompleted, done.Status())
	assert.Equal(t, 11, interrupted.Dispatched())

	report := RunReport{RunID: "r", Summaries: []RunSummary{interrupted, failed, done}}
	totals := report.Totals()
	assert.Equal(t, Totals{Buckets: 3, Processed: 22, Failed: 1, Pages: 2, SinkErrors: 2, Elapsed: 3 * time.Second}, totals)

	err := report.Err()
	assert.ErrorIs(t, err, ErrScanInterrupted)
	assert.True(t, IsQueryError(err))
}
