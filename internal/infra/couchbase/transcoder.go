package couchbase

import (
	"fmt"

	"github.com/couchbase/gocb/v2"
)

// rawDocument is a document body exactly as stored, with its format flags.
type rawDocument struct {
	bytes []byte
	flags uint32
}

// passthroughTranscoder moves bytes and flags between the server and a
// rawDocument untouched, so a TTL rewrite never alters document content or
// its declared format.
type passthroughTranscoder struct{}

var _ gocb.Transcoder = passthroughTranscoder{}

func (passthroughTranscoder) Decode(b []byte, flags uint32, out interface{}) error {
	doc, ok := out.(*rawDocument)
	if !ok {
		return fmt.Errorf("passthrough transcoder cannot decode into %T", out)
	}
	doc.bytes = append(doc.bytes[:0], b...)
	doc.flags = flags
	return nil
}

func (passthroughTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	switch doc := value.(type) {
	case rawDocument:
		return doc.bytes, doc.flags, nil
	case *rawDocument:
		return doc.bytes, doc.flags, nil
	default:
		return nil, 0, fmt.Errorf("passthrough transcoder cannot encode %T", value)
	}
}
