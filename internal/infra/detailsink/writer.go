// Package detailsink provides append-only destinations for per-document
// detail records: a console, a file, or several at once.
package detailsink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// FormatLine renders a record as a single line without a trailing newline.
func FormatLine(rec expiry.DetailRecord) string {
	if rec.Success {
		return fmt.Sprintf("bucket=%s id=%s ttl=%s status=updated", rec.Bucket, rec.ID, ttlField(rec.TTL))
	}
	return fmt.Sprintf("bucket=%s id=%s ttl=%s status=failed kind=%s cause=%s",
		rec.Bucket, rec.ID, ttlField(rec.TTL), rec.Kind, strconv.Quote(rec.Cause))
}

func ttlField(ttl expiry.TTL) string {
	if ttl.IsNever() {
		return "never"
	}
	return ttl.String()
}

var _ expiry.DetailSink = (*WriterSink)(nil)

// WriterSink writes one line per record to an io.Writer. It is safe for
// concurrent use; lines from different buckets never interleave.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	// successesOnly drops failed outcomes. The file sink sets it so the log
	// file lists only updated ids, matching the files earlier tooling wrote
	// and its consumers expect. Failures still reach the console, Kafka and
	// the run summary.
	successesOnly bool
}

// NewConsoleSink writes every record to w, typically os.Stdout. Closing it
// does not close w.
func NewConsoleSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// NewFileSink appends the records of updated documents to path, creating it
// if needed.
func NewFileSink(path string) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening detail log %s: %w", path, err)
	}
	return &WriterSink{w: f, closer: f, successesOnly: true}, nil
}

func (s *WriterSink) WriteDetail(_ context.Context, rec expiry.DetailRecord) error {
	if s.successesOnly && !rec.Success {
		return nil
	}

	line := FormatLine(rec) + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, line); err != nil {
		return fmt.Errorf("writing detail for %s: %w", rec.ID, err)
	}
	return nil
}

func (s *WriterSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
