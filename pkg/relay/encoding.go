package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/backkem/rf24relay/pkg/reading"
	"github.com/fxamacker/cbor/v2"
)

// Encoding selects the wire format of published batches.
type Encoding int

const (
	// EncodingJSON encodes batches as JSON objects.
	EncodingJSON Encoding = iota
	// EncodingCBOR encodes batches as CBOR maps with integer keys.
	EncodingCBOR
)

// String returns the string representation of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingCBOR:
		return "cbor"
	default:
		return "unknown"
	}
}

// ParseEncoding parses "json" or "cbor". The empty string selects JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return EncodingJSON, nil
	case "cbor":
		return EncodingCBOR, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
	}
}

// ContentType returns the MIME type of the encoding.
func (e Encoding) ContentType() string {
	if e == EncodingCBOR {
		return "application/cbor"
	}
	return "application/json"
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes a batch.
func (e Encoding) Marshal(b *reading.Batch) ([]byte, error) {
	switch e {
	case EncodingJSON:
		return json.Marshal(b)
	case EncodingCBOR:
		return cborEnc.Marshal(b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEncoding, int(e))
	}
}

// Unmarshal decodes a batch.
func (e Encoding) Unmarshal(data []byte) (*reading.Batch, error) {
	b := &reading.Batch{}
	var err error
	switch e {
	case EncodingJSON:
		err = json.Unmarshal(data, b)
	case EncodingCBOR:
		err = cborDec.Unmarshal(data, b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEncoding, int(e))
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
