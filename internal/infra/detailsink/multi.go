package detailsink

import (
	"context"
	"errors"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
)

var _ expiry.DetailSink = Multi(nil)

// Multi fans each record out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []expiry.DetailSink

// Combine returns nil for no sinks, the sink itself for one, and a Multi
// otherwise. A nil result lets callers skip detail work entirely.
func Combine(sinks ...expiry.DetailSink) expiry.DetailSink {
	var nonNil Multi
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return nonNil
	}
}

func (m Multi) WriteDetail(ctx context.Context, rec expiry.DetailRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteDetail(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
