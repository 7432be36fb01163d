package reading

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func checkValue(t *testing.T, rs []Reading, name string, want *float64) {
	t.Helper()
	for _, r := range rs {
		if r.Name != name {
			continue
		}
		switch {
		case want == nil && r.Value != nil:
			t.Errorf("%s = %v, want null", name, *r.Value)
		case want != nil && r.Value == nil:
			t.Errorf("%s = null, want %v", name, *want)
		case want != nil && *r.Value != *want:
			t.Errorf("%s = %v, want %v", name, *r.Value, *want)
		}
		if !r.Timestamp.Equal(testTime) {
			t.Errorf("%s timestamp = %v, want %v", name, r.Timestamp, testTime)
		}
		return
	}
	t.Errorf("reading %s not found", name)
}

func TestFromFrame(t *testing.T) {
	t.Run("th", func(t *testing.T) {
		rs := FromFrame(&frame.TH{Temperature: 213, Humidity: 450}, testTime)
		checkValue(t, rs, NameTHTemperature, value(21.3))
		checkValue(t, rs, NameTHHumidity, value(45.0))
	})

	t.Run("th negative", func(t *testing.T) {
		rs := FromFrame(&frame.TH{Temperature: -125, Humidity: 0}, testTime)
		checkValue(t, rs, NameTHTemperature, value(-12.5))
		checkValue(t, rs, NameTHHumidity, value(0))
	})

	t.Run("th sentinels", func(t *testing.T) {
		rs := FromFrame(&frame.TH{Temperature: -32768, Humidity: 0xFF}, testTime)
		checkValue(t, rs, NameTHTemperature, nil)
		checkValue(t, rs, NameTHHumidity, nil)
	})

	t.Run("tp", func(t *testing.T) {
		rs := FromFrame(&frame.TP{Temperature: 55, Pressure: 10132}, testTime)
		checkValue(t, rs, NameTPTemperature, value(5.5))
		checkValue(t, rs, NameTPPressure, value(101.32))
	})

	t.Run("power", func(t *testing.T) {
		rs := FromFrame(&frame.Power{Millivolt: 3012, Reserve: 87, Alert: 1}, testTime)
		checkValue(t, rs, NameMillivolt, value(3012))
		checkValue(t, rs, NameReserve, value(87))
		checkValue(t, rs, NameAlert, value(1))
	})

	t.Run("power sentinels", func(t *testing.T) {
		rs := FromFrame(&frame.Power{Millivolt: 0xFFFFFFFF, Reserve: 0xFF}, testTime)
		checkValue(t, rs, NameMillivolt, nil)
		checkValue(t, rs, NameReserve, nil)
		checkValue(t, rs, NameAlert, value(0))
	})

	t.Run("onewire", func(t *testing.T) {
		f := &frame.Onewire{Device: [8]byte{0x28, 0xff, 1, 2, 3, 4, 5, 6}}
		binary.LittleEndian.PutUint16(f.Data[0:2], 0x0191) // 25.0625
		rs := FromFrame(f, testTime)
		checkValue(t, rs, "onewire/28ff010203040506", value(25.0625))
		if rs[0].Raw != "910100000000000000000000" {
			t.Errorf("Raw = %s", rs[0].Raw)
		}
	})

	t.Run("onewire sentinel", func(t *testing.T) {
		f := &frame.Onewire{Data: [12]byte{0xFF, 0xFF}}
		checkValue(t, FromFrame(f, testTime), "onewire/0000000000000000", nil)
	})

	t.Run("antenna", func(t *testing.T) {
		rs := FromFrame(&frame.Antenna{Signal: 95, Power: 3, Channel: 0x5e}, testTime)
		checkValue(t, rs, NameSignal, value(95))
		checkValue(t, rs, NameTxPower, value(3))
		checkValue(t, rs, NameChannel, value(0x5e))
	})

	t.Run("no readings", func(t *testing.T) {
		if rs := FromFrame(&frame.KeyPart1{}, testTime); rs != nil {
			t.Errorf("FromFrame(KeyPart1) = %v, want nil", rs)
		}
	})
}

func TestFromSingle(t *testing.T) {
	plain := make([]byte, CombinedPayloadSize)
	binary.LittleEndian.PutUint16(plain[0:2], 0xFFD8) // -4.0
	binary.LittleEndian.PutUint16(plain[2:4], 612)
	binary.LittleEndian.PutUint16(plain[4:6], 2950)
	plain[6], plain[7], plain[8] = 80, 2, 0x24

	t.Run("th", func(t *testing.T) {
		rs, err := FromSingle(frame.TypeTHAntennaPower, plain, testTime)
		if err != nil {
			t.Fatalf("FromSingle() error = %v", err)
		}
		if len(rs) != 6 {
			t.Fatalf("FromSingle() returned %d readings, want 6", len(rs))
		}
		checkValue(t, rs, NameTHTemperature, value(-4))
		checkValue(t, rs, NameTHHumidity, value(61.2))
		checkValue(t, rs, NameMillivolt, value(2950))
		checkValue(t, rs, NameSignal, value(80))
		checkValue(t, rs, NameTxPower, value(2))
		checkValue(t, rs, NameChannel, value(0x24))
	})

	t.Run("tp", func(t *testing.T) {
		rs, err := FromSingle(frame.TypeTPAntennaPower, plain, testTime)
		if err != nil {
			t.Fatalf("FromSingle() error = %v", err)
		}
		checkValue(t, rs, NameTHTemperature, value(-4))
		checkValue(t, rs, NameTPPressure, value(6.12))
	})

	t.Run("battery sentinel", func(t *testing.T) {
		p := append([]byte(nil), plain...)
		p[4], p[5] = 0xFF, 0xFF
		rs, _ := FromSingle(frame.TypeTHAntennaPower, p, testTime)
		checkValue(t, rs, NameMillivolt, nil)
	})

	t.Run("onewire", func(t *testing.T) {
		p := make([]byte, OnewirePayloadSize)
		p[0] = 0x28
		binary.LittleEndian.PutUint16(p[8:10], 0xFF60) // -10.0
		rs, err := FromSingle(frame.TypeOnewireSingle, p, testTime)
		if err != nil {
			t.Fatalf("FromSingle() error = %v", err)
		}
		checkValue(t, rs, "onewire/2800000000000000", value(-10))
	})

	t.Run("short", func(t *testing.T) {
		if _, err := FromSingle(frame.TypeTHAntennaPower, plain[:8], testTime); !errors.Is(err, ErrShortPayload) {
			t.Errorf("FromSingle() error = %v, want %v", err, ErrShortPayload)
		}
	})

	t.Run("iv message", func(t *testing.T) {
		if _, err := FromSingle(frame.TypeIVMessage, plain, testTime); !errors.Is(err, ErrNoReadings) {
			t.Errorf("FromSingle() error = %v, want %v", err, ErrNoReadings)
		}
	})
}

func TestPayloadSize(t *testing.T) {
	tests := []struct {
		t    frame.MessageType
		want int
	}{
		{frame.TypeTHAntennaPower, 9},
		{frame.TypeTPAntennaPower, 9},
		{frame.TypeOnewireSingle, 20},
		{frame.TypeIVMessage, 0},
	}
	for _, tt := range tests {
		if got := PayloadSize(tt.t); got != tt.want {
			t.Errorf("PayloadSize(%s) = %d, want %d", tt.t, got, tt.want)
		}
	}
}

func TestBatch(t *testing.T) {
	var uuid frame.UUID
	uuid[0] = 1
	b := NewBatch(7, uuid)
	b.Add(FromFrame(&frame.TH{Temperature: 100, Humidity: 300}, testTime)...)
	b.Add(Reading{Name: NameTHTemperature, Value: value(11), Type: TypeTemperature, Timestamp: testTime})

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	r, ok := b.Get(NameTHTemperature)
	if !ok || *r.Value != 11 {
		t.Errorf("Get(%s) = %+v, %v", NameTHTemperature, r, ok)
	}
	if _, ok := b.Get("missing"); ok {
		t.Error("Get(missing) found a reading")
	}
}
