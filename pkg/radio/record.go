package radio

import "fmt"

// Serial bridge records:
//
//	0xA5 | kind | length | payload[length] | checksum
//
// The checksum is the XOR of kind, length and every payload byte.
const (
	recordSync       = 0xA5
	maxRecordPayload = 64
)

type record struct {
	kind    recordKind
	payload []byte
}

func encodeRecord(kind recordKind, payload ...byte) []byte {
	b := make([]byte, 0, len(payload)+4)
	b = append(b, recordSync, byte(kind), byte(len(payload)))
	b = append(b, payload...)
	return append(b, recordChecksum(kind, payload))
}

func recordChecksum(kind recordKind, payload []byte) byte {
	sum := byte(kind) ^ byte(len(payload))
	for _, c := range payload {
		sum ^= c
	}
	return sum
}

const (
	stateSync = iota
	stateKind
	stateLength
	statePayload
	stateChecksum
)

// recordDecoder reassembles records from the serial byte stream.
type recordDecoder struct {
	state   int
	kind    recordKind
	length  int
	payload []byte
}

// decode feeds one byte. It returns a complete record, or nil while the
// record is incomplete. After an error the decoder resynchronizes on the
// next sync byte.
func (d *recordDecoder) decode(c byte) (*record, error) {
	switch d.state {
	case stateSync:
		if c == recordSync {
			d.state = stateKind
		}
		return nil, nil

	case stateKind:
		d.kind = recordKind(c)
		d.state = stateLength
		return nil, nil

	case stateLength:
		if int(c) > maxRecordPayload {
			d.reset()
			return nil, fmt.Errorf("%w: length %d", ErrInvalidRecord, c)
		}
		d.length = int(c)
		d.payload = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.payload = append(d.payload, c)
		if len(d.payload) == d.length {
			d.state = stateChecksum
		}
		return nil, nil

	case stateChecksum:
		r := &record{kind: d.kind, payload: d.payload}
		d.reset()
		if want := recordChecksum(r.kind, r.payload); c != want {
			return nil, fmt.Errorf("%w: %s checksum %#02x, want %#02x", ErrInvalidRecord, r.kind, c, want)
		}
		return r, nil

	default:
		d.reset()
		return nil, fmt.Errorf("%w: decoder state %d", ErrInvalidRecord, d.state)
	}
}

func (d *recordDecoder) reset() {
	d.state = stateSync
	d.length = 0
	d.payload = nil
}
