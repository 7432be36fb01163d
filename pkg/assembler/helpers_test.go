package assembler

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/backkem/rf24relay/pkg/crypto"
	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/registry"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testDevice plays the device side of the protocol.
type testDevice struct {
	uuid   frame.UUID
	addr   frame.Address
	secret []byte
}

func newTestDevice() *testDevice {
	d := &testDevice{addr: 12, secret: make([]byte, registry.SecretSize)}
	for i := range d.uuid {
		d.uuid[i] = byte(i + 1)
	}
	for i := range d.secret {
		d.secret[i] = byte(0x40 + i)
	}
	return d
}

func testIV(seed byte) []byte {
	return bytes.Repeat([]byte{seed}, frame.IVSize)
}

func registryFor(t *testing.T, d *testDevice) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.Config{})
	if d != nil && d.secret != nil {
		if err := reg.UpdateKeys(d.uuid, d.addr, bytes.Repeat([]byte{1}, 32), d.secret); err != nil {
			t.Fatalf("UpdateKeys() error = %v", err)
		}
	}
	return reg
}

func newTestAssembler(t *testing.T, d *testDevice) (*Assembler, *registry.Registry) {
	t.Helper()
	reg := registryFor(t, d)
	a, err := New(Config{Devices: reg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, reg
}

func marshal(t *testing.T, f frame.Frame) [frame.Size]byte {
	t.Helper()
	b, err := frame.Encode(f)
	if err != nil {
		t.Fatalf("Encode(%T) error = %v", f, err)
	}
	return b
}

// transmission builds the frames of a multi-frame message. With a non-nil
// iv, an IV frame follows the header and the payloads are encrypted.
type transmission struct {
	header  *frame.Header
	frames  [][frame.Size]byte
	final   [frame.Size]byte
	tag     [frame.TagSize]byte
	payload int
}

func (d *testDevice) transmit(t *testing.T, kind frame.MessageType, iv []byte, payloads ...frame.Frame) *transmission {
	t.Helper()
	h := &frame.Header{From: d.addr, MsgType: kind, Kind: kind, UUID: d.uuid}
	return d.transmitHeader(t, h, iv, payloads...)
}

// transmitHeader is transmit with a caller-built header.
func (d *testDevice) transmitHeader(t *testing.T, h *frame.Header, iv []byte, payloads ...frame.Frame) *transmission {
	t.Helper()
	tx := &transmission{header: h}

	var c *crypto.Acorn128
	seq := uint16(1)
	if iv != nil {
		f := &frame.IV{From: d.addr, Seq: seq}
		copy(f.IV[:], iv)
		tx.frames = append(tx.frames, marshal(t, f))
		seq++

		var err error
		if c, err = crypto.NewAcorn128(d.secret[:16], iv); err != nil {
			t.Fatal(err)
		}
		c.AddAuthData(h.AAD())
	}

	for _, p := range payloads {
		b := marshal(t, p)
		b[1] = byte(d.addr)
		binary.LittleEndian.PutUint16(b[2:4], seq)
		if c != nil {
			c.Encrypt(b[4:], b[4:])
		}
		tx.frames = append(tx.frames, b)
		seq++
	}
	tx.payload = len(tx.frames)

	if c != nil {
		tx.tag = c.Tag()
	}
	tx.final = marshal(t, &frame.Final{From: d.addr, Count: seq, Tag: tx.tag})
	return tx
}

// deliver feeds the transmission to the assembler in the given frame order
// and returns the result of the final frame.
func (tx *transmission) deliver(t *testing.T, a *Assembler, order ...int) (*Result, error) {
	t.Helper()
	if err := a.Begin(tx.header, t0); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if order == nil {
		for i := range tx.frames {
			order = append(order, i)
		}
	}
	for _, i := range order {
		res, err := a.Receive(tx.frames[i], t0.Add(time.Second))
		if err != nil {
			return nil, err
		}
		if res != nil {
			t.Fatalf("Receive() returned a result before the final frame")
		}
	}
	return a.Receive(tx.final, t0.Add(2*time.Second))
}

// single seals a self-contained message under iv.
func (d *testDevice) single(t *testing.T, msgType frame.MessageType, iv, plain []byte) *frame.Single {
	t.Helper()
	s := &frame.Single{From: d.addr, MsgType: msgType}
	raw := marshal(t, s)
	ct, tag, err := crypto.AcornSeal(d.secret[:16], iv, raw[0:6], plain)
	if err != nil {
		t.Fatal(err)
	}
	n := copy(s.Body[:], ct)
	copy(s.Body[n:], tag[:])
	return s
}

// ivMessage builds a self-contained IV announcement.
func (d *testDevice) ivMessage(t *testing.T, iv []byte) *frame.Single {
	t.Helper()
	s := &frame.Single{From: d.addr, MsgType: frame.TypeIVMessage}
	copy(s.Body[:frame.IVSize], iv)
	raw := marshal(t, s)
	_, tag, err := crypto.AcornSeal(d.secret[:16], iv, raw[0:22], nil)
	if err != nil {
		t.Fatal(err)
	}
	copy(s.Body[frame.IVSize:], tag[:10])
	return s
}

func checkReading(t *testing.T, res *Result, name string, want float64) {
	t.Helper()
	r, ok := res.Batch.Get(name)
	if !ok {
		t.Fatalf("reading %s missing from %+v", name, res.Batch.Readings)
	}
	if r.Value == nil || *r.Value != want {
		t.Errorf("%s = %v, want %v", name, r.Value, want)
	}
}
