package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// viewRow is a single row; only the document id is needed.
type viewRow struct {
	ID *string `json:"id"`
}

// rowIterator walks the "rows" array of a view response one element at a
// time. Other top-level fields are skipped.
type rowIterator struct {
	body io.ReadCloser
	dec  *json.Decoder
	req  domain.PageRequest

	id   string
	err  error
	done bool
}

func newRowIterator(body io.ReadCloser, req domain.PageRequest) (*rowIterator, error) {
	it := &rowIterator{body: body, dec: json.NewDecoder(body), req: req}
	if err := it.seekRows(); err != nil {
		return nil, err
	}
	return it, nil
}

// seekRows advances the decoder to just inside the rows array.
func (it *rowIterator) seekRows() error {
	if err := expectDelim(it.dec, '{'); err != nil {
		return err
	}

	for it.dec.More() {
		tok, err := it.dec.Token()
		if err != nil {
			return fmt.Errorf("malformed view response: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("malformed view response: unexpected token %v", tok)
		}

		if key == "rows" {
			return expectDelim(it.dec, '[')
		}

		// Skip the value of any other field.
		var skip json.RawMessage
		if err := it.dec.Decode(&skip); err != nil {
			return fmt.Errorf("malformed view response: %w", err)
		}
	}
	return errors.New("malformed view response: missing rows")
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("malformed view response: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("malformed view response: expected %q, got %v", want, tok)
	}
	return nil
}

func (it *rowIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	if !it.dec.More() {
		it.done = true
		if err := expectDelim(it.dec, ']'); err != nil {
			it.err = domain.NewQueryError(it.req, 0, err)
		}
		return false
	}

	var row viewRow
	if err := it.dec.Decode(&row); err != nil {
		it.err = domain.NewQueryError(it.req, 0, fmt.Errorf("malformed view row: %w", err))
		return false
	}
	if row.ID == nil {
		it.err = domain.NewQueryError(it.req, 0, errors.New("malformed view row: missing id (is the view reduced?)"))
		return false
	}
	it.id = *row.ID
	return true
}

func (it *rowIterator) ID() string { return it.id }

func (it *rowIterator) Err() error { return it.err }

func (it *rowIterator) Close() error { return it.body.Close() }
