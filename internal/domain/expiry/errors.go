package expiry

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound is returned by a DocumentStore when the document no
	// longer exists.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrVersionMismatch is returned by a DocumentStore when a conditional
	// write lost a race with a concurrent modification.
	ErrVersionMismatch = errors.New("document version mismatch")

	// ErrDesignDocumentNotFound is returned by a ViewManager when the design
	// document does not exist.
	ErrDesignDocumentNotFound = errors.New("design document not found")

	// ErrInvalidPageRequest reports a malformed skip/limit pair.
	ErrInvalidPageRequest = errors.New("invalid page request")

	// ErrInvalidBatchSize reports a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidDocumentLimit reports a negative document limit.
	ErrInvalidDocumentLimit = errors.New("document limit must not be negative")

	// ErrTTLOutOfRange reports a TTL too large for the store to represent.
	ErrTTLOutOfRange = errors.New("ttl out of range")

	// ErrScanInterrupted is returned when a scan stops at a page boundary
	// because its context was cancelled.
	ErrScanInterrupted = errors.New("scan interrupted")
)

// QueryError reports a failed page fetch. It is fatal to the bucket's scan.
type QueryError struct {
	Bucket string
	View   string
	Skip   int
	Limit  int
	// StatusCode is the HTTP status for REST queries, 0 otherwise.
	StatusCode int
	Err        error
}

// NewQueryError wraps err with the page coordinates.
func NewQueryError(req PageRequest, statusCode int, err error) *QueryError {
	return &QueryError{
		Bucket:     req.Bucket,
		View:       req.View,
		Skip:       req.Skip,
		Limit:      req.Limit,
		StatusCode: statusCode,
		Err:        err,
	}
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("view query %s/%s failed (skip=%d, limit=%d)", e.Bucket, e.View, e.Skip, e.Limit)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsQueryError reports whether err carries a *QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
