package couchbase

import (
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// translateKVError maps SDK key/value errors onto the domain sentinels while
// keeping the SDK error in the chain.
func translateKVError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return fmt.Errorf("%w: %w", domain.ErrDocumentNotFound, err)
	case errors.Is(err, gocb.ErrCasMismatch), errors.Is(err, gocb.ErrDocumentExists):
		return fmt.Errorf("%w: %w", domain.ErrVersionMismatch, err)
	default:
		return err
	}
}

func translateViewIndexError(err error) error {
	if errors.Is(err, gocb.ErrDesignDocumentNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrDesignDocumentNotFound, err)
	}
	return err
}
