// Package metrics provides the OpenTelemetry instruments for bucket scans.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// Scan implements expiry.ScanMetrics from the app layer.
type Scan struct {
	// Mutation metrics
	documentsUpdated metric.Int64Counter
	documentsFailed  metric.Int64Counter
	mutationRetries  metric.Int64Counter
	mutationTime     metric.Float64Histogram

	// Paging metrics
	pagesFetched  metric.Int64Counter
	pageFetchTime metric.Float64Histogram

	sinkErrors  metric.Int64Counter
	activeScans metric.Int64UpDownCounter
	scanTime    metric.Float64Histogram
}

const namespace = "cbexpiry"

// New creates the scan instruments on the given provider.
func New(mp metric.MeterProvider) (*Scan, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	s := new(Scan)
	var err error

	if s.documentsUpdated, err = meter.Int64Counter(
		"documents_updated_total",
		metric.WithDescription("Total number of documents whose TTL was written"),
	); err != nil {
		return nil, err
	}

	if s.documentsFailed, err = meter.Int64Counter(
		"documents_failed_total",
		metric.WithDescription("Total number of documents whose TTL update failed"),
	); err != nil {
		return nil, err
	}

	if s.mutationRetries, err = meter.Int64Counter(
		"mutation_retries_total",
		metric.WithDescription("Total number of read-modify-write retries after a CAS mismatch"),
	); err != nil {
		return nil, err
	}

	if s.mutationTime, err = meter.Float64Histogram(
		"mutation_duration_seconds",
		metric.WithDescription("Time taken to update a single document"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if s.pagesFetched, err = meter.Int64Counter(
		"pages_fetched_total",
		metric.WithDescription("Total number of view pages fetched"),
	); err != nil {
		return nil, err
	}

	if s.pageFetchTime, err = meter.Float64Histogram(
		"page_fetch_duration_seconds",
		metric.WithDescription("Time taken to fetch a view page"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if s.sinkErrors, err = meter.Int64Counter(
		"detail_sink_errors_total",
		metric.WithDescription("Total number of detail records that could not be written"),
	); err != nil {
		return nil, err
	}

	if s.activeScans, err = meter.Int64UpDownCounter(
		"active_scans",
		metric.WithDescription("Number of bucket scans in progress"),
	); err != nil {
		return nil, err
	}

	if s.scanTime, err = meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Time taken to scan a bucket"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return s, nil
}

func bucketAttr(bucket string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("bucket", bucket))
}

func (s *Scan) IncDocumentsUpdated(ctx context.Context, bucket string) {
	s.documentsUpdated.Add(ctx, 1, bucketAttr(bucket))
}

func (s *Scan) IncDocumentsFailed(ctx context.Context, bucket string, kind expiry.FailureKind) {
	s.documentsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("kind", string(kind)),
	))
}

func (s *Scan) IncMutationRetries(ctx context.Context, bucket string) {
	s.mutationRetries.Add(ctx, 1, bucketAttr(bucket))
}

func (s *Scan) ObserveMutationDuration(ctx context.Context, bucket string, d time.Duration) {
	s.mutationTime.Record(ctx, d.Seconds(), bucketAttr(bucket))
}

func (s *Scan) IncPagesFetched(ctx context.Context, bucket string) {
	s.pagesFetched.Add(ctx, 1, bucketAttr(bucket))
}

func (s *Scan) ObservePageFetchDuration(ctx context.Context, bucket string, d time.Duration) {
	s.pageFetchTime.Record(ctx, d.Seconds(), bucketAttr(bucket))
}

func (s *Scan) IncSinkErrors(ctx context.Context, bucket string) {
	s.sinkErrors.Add(ctx, 1, bucketAttr(bucket))
}

// TrackScan wraps f with the active-scan gauge and records its duration.
func (s *Scan) TrackScan(ctx context.Context, bucket string, f func() error) error {
	start := time.Now()
	s.activeScans.Add(ctx, 1, bucketAttr(bucket))
	defer func() {
		s.activeScans.Add(ctx, -1, bucketAttr(bucket))
		s.scanTime.Record(ctx, time.Since(start).Seconds(), bucketAttr(bucket))
	}()

	return f()
}
