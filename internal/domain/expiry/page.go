package expiry

import (
	"context"
	"fmt"
)

// PageRequest describes a single skip/limit page of a view query.
type PageRequest struct {
	Bucket string
	View   string
	Skip   int
	Limit  int
}

// Validate checks that skip and limit are usable.
func (r PageRequest) Validate() error {
	if r.Bucket == "" || r.View == "" {
		return fmt.Errorf("bucket and view are required")
	}
	if r.Skip < 0 {
		return fmt.Errorf("%w: negative skip %d", ErrInvalidPageRequest, r.Skip)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidPageRequest, r.Limit)
	}
	return nil
}

// PageIterator is a lazily consumed, ordered sequence of document identifiers
// belonging to one page. Callers must Close it.
//
//	it, err := querier.FetchPage(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer it.Close()
//	for it.Next() {
//	    id := it.ID()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator interface {
	Next() bool
	ID() string
	Err() error
	Close() error
}

// ViewQuerier issues one paged view query.
type ViewQuerier interface {
	// FetchPage must use strict consistency: the view index is brought up to
	// date before the page is answered. Errors are reported as *QueryError.
	FetchPage(ctx context.Context, req PageRequest) (PageIterator, error)
}

// SliceIterator is a PageIterator over an in-memory slice.
type SliceIterator struct {
	ids []string
	pos int
	err error
}

// NewSliceIterator returns a PageIterator that yields ids in order and then
// reports err (which may be nil) from Err.
func NewSliceIterator(ids []string, err error) *SliceIterator {
	return &SliceIterator{ids: ids, pos: -1, err: err}
}

func (s *SliceIterator) Next() bool {
	if s.pos+1 >= len(s.ids) {
		s.pos = len(s.ids)
		return false
	}
	s.pos++
	return true
}

func (s *SliceIterator) ID() string {
	if s.pos < 0 || s.pos >= len(s.ids) {
		return ""
	}
	return s.ids[s.pos]
}

func (s *SliceIterator) Err() error {
	if s.pos >= len(s.ids) {
		return s.err
	}
	return nil
}

func (s *SliceIterator) Close() error { return nil }
