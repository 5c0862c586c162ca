package expiry

import "fmt"

// ScanState tracks paging progress for one bucket's scan. It is owned by a
// single scanner and mutated once per page.
//
// While no short page has been seen, NextSkip() == Dispatched(). A bounded
// quota decreases by exactly the number of documents dispatched per page and
// never goes negative.
type ScanState struct {
	bucket string

	bounded   bool
	remaining int

	nextSkip   int
	dispatched int
	pages      int
	done       bool
}

// NewScanState starts a scan at skip 0. A nil documentLimit means unbounded; a
// limit of zero is valid and yields a state that is already done.
func NewScanState(bucket string, documentLimit *int) (*ScanState, error) {
	s := &ScanState{bucket: bucket}
	if documentLimit != nil {
		if *documentLimit < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidDocumentLimit, *documentLimit)
		}
		s.bounded = true
		s.remaining = *documentLimit
		s.done = s.remaining == 0
	}
	return s, nil
}

// EffectiveLimit is the number of documents the next page may request: the
// batch size, clamped to the remaining quota when one is set.
func (s *ScanState) EffectiveLimit(batchSize int) int {
	if !s.bounded || s.remaining >= batchSize {
		return batchSize
	}
	return s.remaining
}

// NextPage builds the request for the next page.
func (s *ScanState) NextPage(view string, batchSize int) PageRequest {
	return PageRequest{
		Bucket: s.bucket,
		View:   view,
		Skip:   s.nextSkip,
		Limit:  s.EffectiveLimit(batchSize),
	}
}

// Advance records a dispatched page. requested is the page's effective limit
// and returned the number of identifiers that came back and were dispatched.
// The scan is done when the page was short or the quota is exhausted.
func (s *ScanState) Advance(requested, returned int) error {
	if s.done {
		return fmt.Errorf("scan of bucket %s already finished", s.bucket)
	}
	if returned < 0 || returned > requested {
		return fmt.Errorf("page returned %d documents for limit %d", returned, requested)
	}
	if s.bounded && returned > s.remaining {
		return fmt.Errorf("page returned %d documents with only %d remaining", returned, s.remaining)
	}

	s.pages++
	s.nextSkip += returned
	s.dispatched += returned
	if s.bounded {
		s.remaining -= returned
	}

	s.done = returned < requested || (s.bounded && s.remaining == 0)
	return nil
}

// Done reports whether the scan has terminated.
func (s *ScanState) Done() bool { return s.done }

// NextSkip is the skip offset of the next page.
func (s *ScanState) NextSkip() int { return s.nextSkip }

// Dispatched is the cumulative number of identifiers handed to the mutator.
func (s *ScanState) Dispatched() int { return s.dispatched }

// Pages is the number of pages advanced through.
func (s *ScanState) Pages() int { return s.pages }

// Remaining returns the remaining quota and whether a quota applies.
func (s *ScanState) Remaining() (int, bool) { return s.remaining, s.bounded }

// Bucket returns the bucket being scanned.
func (s *ScanState) Bucket() string { return s.bucket }
