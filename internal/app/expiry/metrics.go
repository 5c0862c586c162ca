package expiry

import (
	"context"
	"time"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// ScanMetrics defines the instruments recorded while scanning buckets.
type ScanMetrics interface {
	// Mutation metrics
	IncDocumentsUpdated(ctx context.Context, bucket string)
	IncDocumentsFailed(ctx context.Context, bucket string, kind domain.FailureKind)
	IncMutationRetries(ctx context.Context, bucket string)
	ObserveMutationDuration(ctx context.Context, bucket string, d time.Duration)

	// Paging metrics
	IncPagesFetched(ctx context.Context, bucket string)
	ObservePageFetchDuration(ctx context.Context, bucket string, d time.Duration)

	// Reporter metrics
	IncSinkErrors(ctx context.Context, bucket string)

	// TrackScan marks a bucket scan active for the duration of f.
	TrackScan(ctx context.Context, bucket string, f func() error) error
}
