package assembler

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/reading"
)

func readingsPayload() []frame.Frame {
	return []frame.Frame{
		&frame.TH{Temperature: 213, Humidity: 450},
		&frame.Power{Millivolt: 3012, Reserve: 87, Alert: 0},
	}
}

func TestEncryptedReadings(t *testing.T) {
	d := newTestDevice()
	a, reg := newTestAssembler(t, d)
	iv := testIV(0x11)
	tx := d.transmit(t, frame.TypeCombinedReadings, iv, readingsPayload()...)

	res, err := tx.deliver(t, a)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	if res.Kind != KindReadings {
		t.Errorf("Kind = %s, want %s", res.Kind, KindReadings)
	}
	if res.UUID != d.uuid || res.Batch.UUID != d.uuid {
		t.Errorf("UUID = %s, want %s", res.UUID, d.uuid)
	}
	checkReading(t, res, reading.NameTHTemperature, 21.3)
	checkReading(t, res, reading.NameTHHumidity, 45.0)
	checkReading(t, res, reading.NameMillivolt, 3012)
	if res.Batch.Len() != 5 {
		t.Errorf("Batch.Len() = %d, want 5", res.Batch.Len())
	}
	for _, r := range res.Batch.Readings {
		if !r.Timestamp.Equal(t0) {
			t.Errorf("%s timestamp = %v, want assembly start %v", r.Name, r.Timestamp, t0)
		}
	}

	if res.Ack == nil {
		t.Fatal("Ack = nil, want an ACK")
	}
	if res.Ack.To != d.addr || res.Ack.Tag != tx.tag {
		t.Errorf("Ack = %+v, want to %d with tag %x", res.Ack, d.addr, tx.tag)
	}
	if !res.IVConfirmed {
		t.Error("IVConfirmed = false")
	}

	dev, _ := reg.ByUUID(d.uuid)
	if !bytes.Equal(dev.IVCandidate, iv) || !bytes.Equal(dev.IV, iv) {
		t.Errorf("registry iv = %x, candidate = %x, want %x", dev.IV, dev.IVCandidate, iv)
	}
	if a.State(d.addr) != StateAwaitingHeader || a.InFlight() != 0 {
		t.Error("assembly not released after delivery")
	}
}

func TestStates(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(2), readingsPayload()...)

	if s := a.State(d.addr); s != StateAwaitingHeader {
		t.Errorf("State() before header = %s", s)
	}
	_ = a.Begin(tx.header, t0)
	if s := a.State(d.addr); s != StateCollecting {
		t.Errorf("State() after header = %s, want %s", s, StateCollecting)
	}
	_, _ = a.Receive(tx.frames[0], t0)
	if s := a.State(d.addr); s != StateDecrypting {
		t.Errorf("State() after iv = %s, want %s", s, StateDecrypting)
	}
}

func TestReorderedFrames(t *testing.T) {
	payloads := append(readingsPayload(), &frame.Antenna{Signal: 90, Power: 3, Channel: 0x5e})

	// Frame 0 is the IV frame.
	orders := [][]int{
		{0, 2, 1, 3},
		{3, 2, 1, 0},
		{1, 0, 3, 2},
		{2, 3, 0, 1},
	}

	for _, order := range orders {
		d := newTestDevice()
		a, _ := newTestAssembler(t, d)
		tx := d.transmit(t, frame.TypeCombinedReadings, testIV(3), payloads...)

		res, err := tx.deliver(t, a, order...)
		if err != nil {
			t.Fatalf("order %v: error = %v", order, err)
		}
		checkReading(t, res, reading.NameTHTemperature, 21.3)
		checkReading(t, res, reading.NameSignal, 90)
	}
}

func TestDuplicateFrames(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(4), readingsPayload()...)

	res, err := tx.deliver(t, a, 0, 2, 2, 1, 1, 0, 2)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	checkReading(t, res, reading.NameTHHumidity, 45.0)
}

func TestBitFlipsReject(t *testing.T) {
	d := newTestDevice()
	iv := testIV(5)
	clean := d.transmit(t, frame.TypeCombinedReadings, iv, readingsPayload()...)

	t.Run("ciphertext", func(t *testing.T) {
		for fi := 1; fi < len(clean.frames); fi++ {
			for bit := 4 * 8; bit < frame.Size*8; bit++ {
				tx := *clean
				tx.frames = append([][frame.Size]byte(nil), clean.frames...)
				tx.frames[fi][bit/8] ^= 1 << (bit % 8)

				a, _ := newTestAssembler(t, d)
				res, err := tx.deliver(t, a)
				if !errors.Is(err, ErrAuthentication) {
					t.Fatalf("frame %d bit %d: error = %v, want %v", fi, bit, err, ErrAuthentication)
				}
				if res != nil {
					t.Fatalf("frame %d bit %d: readings surfaced", fi, bit)
				}
			}
		}
	})

	t.Run("tag", func(t *testing.T) {
		for bit := 8 * 8; bit < 24*8; bit++ {
			tx := *clean
			tx.final[bit/8] ^= 1 << (bit % 8)

			a, _ := newTestAssembler(t, d)
			res, err := tx.deliver(t, a)
			if !errors.Is(err, ErrAuthentication) {
				t.Fatalf("tag bit %d: error = %v, want %v", bit, err, ErrAuthentication)
			}
			if res != nil {
				t.Fatalf("tag bit %d: readings surfaced", bit)
			}
		}
	})

	t.Run("header", func(t *testing.T) {
		// Bytes [0:22] of the header are bound as associated data.
		tx := *clean
		h := *clean.header
		h.Kind ^= 0x0100
		tx.header = &h

		a, _ := newTestAssembler(t, d)
		if _, err := tx.deliver(t, a); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("error = %v, want %v", err, ErrAuthentication)
		}
	})

	t.Run("iv frame type", func(t *testing.T) {
		// A corrupted IV frame type makes the message look unencrypted.
		tx := *clean
		tx.frames = append([][frame.Size]byte(nil), clean.frames...)
		tx.frames[0][4] ^= 0x02

		a, _ := newTestAssembler(t, d)
		res, err := tx.deliver(t, a)
		if !errors.Is(err, ErrUnknownFrame) {
			t.Fatalf("error = %v, want %v", err, ErrUnknownFrame)
		}
		if res != nil {
			t.Fatal("message delivered without authentication")
		}
	})

	t.Run("rejection keeps registry", func(t *testing.T) {
		tx := *clean
		tx.final[10] ^= 0xFF
		a, reg := newTestAssembler(t, d)
		_, _ = tx.deliver(t, a)
		dev, _ := reg.ByUUID(d.uuid)
		if dev.IV != nil || dev.IVCandidate != nil {
			t.Errorf("iv recorded for a rejected message: %x / %x", dev.IV, dev.IVCandidate)
		}
	})
}

func TestSequenceGap(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(6), readingsPayload()...)

	res, err := tx.deliver(t, a, 0, 2)
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("error = %v, want %v", err, ErrSequenceGap)
	}
	if res != nil {
		t.Error("result returned for an incomplete message")
	}
	if a.InFlight() != 0 {
		t.Error("assembly kept after rejection")
	}
}

func TestFrameCountMismatch(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	tx := d.transmit(t, frame.TypeCombinedReadings, nil, readingsPayload()...)
	fin := tx.final
	fin[6] = 9
	tx.final = fin

	if _, err := tx.deliver(t, a); !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("error = %v, want %v", err, ErrSequenceGap)
	}
}

func TestNoSharedSecret(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, &testDevice{})
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(7), readingsPayload()...)

	_ = a.Begin(tx.header, t0)
	if _, err := a.Receive(tx.frames[0], t0); !errors.Is(err, ErrNoSharedSecret) {
		t.Fatalf("Receive(iv) error = %v, want %v", err, ErrNoSharedSecret)
	}
	if _, err := a.Receive(tx.frames[1], t0); !errors.Is(err, ErrNoAssembly) {
		t.Errorf("Receive() after abandon error = %v, want %v", err, ErrNoAssembly)
	}
}

func TestNoAssembly(t *testing.T) {
	a, _ := newTestAssembler(t, nil)
	raw := marshal(t, &frame.TH{From: 40, Seq: 1})
	if _, err := a.Receive(raw, t0); !errors.Is(err, ErrNoAssembly) {
		t.Errorf("Receive() error = %v, want %v", err, ErrNoAssembly)
	}

	raw[0] = 3
	if _, err := a.Receive(raw, t0); !errors.Is(err, frame.ErrMalformedFrame) {
		t.Errorf("Receive() error = %v, want %v", err, frame.ErrMalformedFrame)
	}
}

func TestHeaderSupersedes(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	stale := d.transmit(t, frame.TypeCombinedReadings, testIV(8), readingsPayload()...)
	fresh := d.transmit(t, frame.TypeCombinedReadings, testIV(9), &frame.TH{Temperature: 100, Humidity: 200})

	_ = a.Begin(stale.header, t0)
	_, _ = a.Receive(stale.frames[0], t0)
	_, _ = a.Receive(stale.frames[1], t0)

	res, err := fresh.deliver(t, a)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	checkReading(t, res, reading.NameTHTemperature, 10)
	if _, ok := res.Batch.Get(reading.NameMillivolt); ok {
		t.Error("readings from the superseded message leaked")
	}
}

func TestBeginRejectsSingleFrame(t *testing.T) {
	a, _ := newTestAssembler(t, nil)
	h := &frame.Header{From: 3, MsgType: frame.TypeTHAntennaPower}
	if err := a.Begin(h, t0); !errors.Is(err, ErrNotMultiFrame) {
		t.Errorf("Begin() error = %v, want %v", err, ErrNotMultiFrame)
	}
}

func TestExpire(t *testing.T) {
	d := newTestDevice()
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(10), readingsPayload()...)

	t.Run("default timeout", func(t *testing.T) {
		a, _ := newTestAssembler(t, d)
		_ = a.Begin(tx.header, t0)
		_, _ = a.Receive(tx.frames[0], t0.Add(10*time.Second))

		if n := a.Expire(t0.Add(39 * time.Second)); n != 0 {
			t.Errorf("Expire() = %d before the timeout, want 0", n)
		}
		if n := a.Expire(t0.Add(41 * time.Second)); n != 1 {
			t.Errorf("Expire() = %d after the timeout, want 1", n)
		}
		if _, err := a.Receive(tx.frames[1], t0.Add(42*time.Second)); !errors.Is(err, ErrNoAssembly) {
			t.Errorf("Receive() error = %v, want %v", err, ErrNoAssembly)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		a, err := New(Config{Devices: registryFor(t, d), AssemblyTimeout: -1})
		if err != nil {
			t.Fatal(err)
		}
		_ = a.Begin(tx.header, t0)
		if n := a.Expire(t0.Add(time.Hour)); n != 0 {
			t.Errorf("Expire() = %d with expiry disabled, want 0", n)
		}
	})
}

func TestKeyExchangeTransmission(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, &testDevice{})

	p1 := &frame.KeyPart1{From: d.addr}
	p2 := &frame.KeyPart2{From: d.addr, Checksum: 0x12345678}
	p1.Key[0], p2.KeyTail[5] = 0xAB, 0xCD
	tx := d.transmit(t, frame.TypeNewKey, nil, p1, p2)

	res, err := tx.deliver(t, a)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if res.Kind != KindKeyExchange {
		t.Fatalf("Kind = %s, want %s", res.Kind, KindKeyExchange)
	}
	if res.Part1 == nil || res.Part2 == nil {
		t.Fatalf("key parts = %v, %v", res.Part1, res.Part2)
	}
	if res.Part1.Key[0] != 0xAB || res.Part2.KeyTail[5] != 0xCD || res.Part2.Checksum != 0x12345678 {
		t.Errorf("key parts altered: %+v %+v", res.Part1, res.Part2)
	}
	if res.Ack != nil || res.Batch != nil {
		t.Error("key exchange produced an ACK or readings")
	}
	if res.UUID != d.uuid {
		t.Errorf("UUID = %s, want %s", res.UUID, d.uuid)
	}
}

func TestIVExchangeTransmission(t *testing.T) {
	d := newTestDevice()
	a, reg := newTestAssembler(t, d)
	if err := reg.PromoteIV(d.uuid, testIV(1)); err != nil {
		t.Fatal(err)
	}

	iv := testIV(0x21)
	tx := d.transmit(t, frame.TypeIVExchange, iv)
	res, err := tx.deliver(t, a)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if res.Kind != KindIVExchange || res.Ack != nil || res.Batch != nil {
		t.Errorf("result = %+v, want iv exchange only", res)
	}

	dev, _ := reg.ByUUID(d.uuid)
	if !bytes.Equal(dev.IV, testIV(1)) {
		t.Errorf("current iv replaced: %x", dev.IV)
	}
	if !bytes.Equal(dev.IVCandidate, iv) {
		t.Errorf("IVCandidate = %x, want %x", dev.IVCandidate, iv)
	}
}

func TestUnknownKindAcks(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	kind := frame.MessageType(0x0110)
	tx := d.transmit(t, kind, testIV(0x31), &frame.TP{Temperature: 55, Pressure: 10132})

	res, err := tx.deliver(t, a)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if res.Ack == nil {
		t.Error("Ack = nil")
	}
	checkReading(t, res, reading.NameTPPressure, 101.32)
}

func TestUnknownHeaderUUID(t *testing.T) {
	d := newTestDevice()
	a, reg := newTestAssembler(t, d)
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(0x41), readingsPayload()...)

	// UUID bytes 14 and 15 lie outside the associated data. An unknown UUID
	// must not borrow the secret of the device holding the address.
	h := *tx.header
	h.UUID[15] ^= 1
	tx.header = &h

	res, err := tx.deliver(t, a)
	if !errors.Is(err, ErrNoSharedSecret) {
		t.Fatalf("error = %v, want %v", err, ErrNoSharedSecret)
	}
	if res != nil {
		t.Fatal("readings surfaced under an unregistered uuid")
	}
	if dev, _ := reg.ByUUID(d.uuid); dev.IV != nil || dev.IVCandidate != nil {
		t.Errorf("iv recorded: %x / %x", dev.IV, dev.IVCandidate)
	}
}

func TestAnonymousHeaderUsesAddress(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	h := &frame.Header{From: d.addr, MsgType: frame.TypeCombinedReadings, Kind: frame.TypeCombinedReadings}
	tx := d.transmitHeader(t, h, testIV(0x42), readingsPayload()...)

	res, err := tx.deliver(t, a)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if res.UUID != d.uuid || res.Batch.UUID != d.uuid {
		t.Errorf("UUID = %s, want %s", res.UUID, d.uuid)
	}
}

func TestUnknownPayloadType(t *testing.T) {
	d := newTestDevice()
	a, _ := newTestAssembler(t, d)
	unknown := &frame.Payload{MsgType: 0x0777}
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(0x43), append(readingsPayload(), unknown)...)

	res, err := tx.deliver(t, a)
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("error = %v, want %v", err, ErrUnknownFrame)
	}
	if res != nil {
		t.Error("result returned for a message with an unknown frame")
	}
}

func TestPendingOverflow(t *testing.T) {
	d := newTestDevice()
	a, err := New(Config{Devices: registryFor(t, d), MaxPending: 1})
	if err != nil {
		t.Fatal(err)
	}
	payloads := append(readingsPayload(), &frame.Antenna{Signal: 90, Power: 3, Channel: 0x5e})
	tx := d.transmit(t, frame.TypeCombinedReadings, testIV(0x44), payloads...)

	_ = a.Begin(tx.header, t0)
	if _, err := a.Receive(tx.frames[2], t0); err != nil {
		t.Fatalf("Receive(2) error = %v", err)
	}
	if _, err := a.Receive(tx.frames[3], t0); !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("Receive(3) error = %v, want %v", err, ErrSequenceGap)
	}
	if a.InFlight() != 0 {
		t.Error("assembly kept after overflow")
	}
	if _, err := a.Receive(tx.frames[0], t0); !errors.Is(err, ErrNoAssembly) {
		t.Errorf("Receive(0) error = %v, want %v", err, ErrNoAssembly)
	}
}
