package reading

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
)

// Sentinels.
const (
	nullTemperature int16  = -32768
	nullHumidity    uint16 = 0xFF
	nullPressure    uint16 = 0xFF
	nullMillivolt   uint32 = 0xFFFFFFFF
	nullBattery     uint16 = 0xFFFF
	nullReserve     uint8  = 0xFF
	nullOnewire     uint16 = 0xFFFF
)

// Payload sizes of single-frame messages.
const (
	CombinedPayloadSize = 9
	OnewirePayloadSize  = 20
)

// Temperature decodes a temperature in tenths of a degree.
func Temperature(v int16) *float64 {
	if v == nullTemperature {
		return nil
	}
	return value(float64(v) / 10)
}

// Humidity decodes a relative humidity in tenths of a percent.
func Humidity(v uint16) *float64 {
	if v == nullHumidity {
		return nil
	}
	return value(float64(v) / 10)
}

// Pressure decodes a pressure in hundredths of a kPa.
func Pressure(v uint16) *float64 {
	if v == nullPressure {
		return nil
	}
	return value(float64(v) / 100)
}

// OnewireTemperature decodes the first two scratchpad bytes of a onewire
// temperature probe, in sixteenths of a degree.
func OnewireTemperature(data []byte) *float64 {
	if len(data) < 2 {
		return nil
	}
	raw := binary.LittleEndian.Uint16(data[0:2])
	if raw == nullOnewire {
		return nil
	}
	return value(float64(int16(raw)) / 16)
}

// FromFrame returns the readings carried by a decoded payload frame. Frames
// without readings yield nil.
func FromFrame(f frame.Frame, ts time.Time) []Reading {
	switch p := f.(type) {
	case *frame.TH:
		return []Reading{
			{Name: NameTHTemperature, Value: Temperature(p.Temperature), Type: TypeTemperature, Timestamp: ts},
			{Name: NameTHHumidity, Value: Humidity(p.Humidity), Type: TypeHumidity, Timestamp: ts},
		}
	case *frame.TP:
		return []Reading{
			{Name: NameTPTemperature, Value: Temperature(p.Temperature), Type: TypeTemperature, Timestamp: ts},
			{Name: NameTPPressure, Value: Pressure(p.Pressure), Type: TypePressure, Timestamp: ts},
		}
	case *frame.Power:
		mv := value(float64(p.Millivolt))
		if p.Millivolt == nullMillivolt {
			mv = nil
		}
		reserve := value(float64(p.Reserve))
		if p.Reserve == nullReserve {
			reserve = nil
		}
		return []Reading{
			{Name: NameMillivolt, Value: mv, Type: TypeMillivolt, Timestamp: ts},
			{Name: NameReserve, Value: reserve, Type: TypePercent, Timestamp: ts},
			{Name: NameAlert, Value: value(float64(p.Alert)), Type: TypeBool, Timestamp: ts},
		}
	case *frame.Onewire:
		return []Reading{onewire(p.Device[:], p.Data[:], ts)}
	case *frame.Antenna:
		return antenna(p.Signal, p.Power, p.Channel, ts)
	}
	return nil
}

// FromSingle decodes the plaintext of a single-frame message.
func FromSingle(t frame.MessageType, plain []byte, ts time.Time) ([]Reading, error) {
	switch t {
	case frame.TypeTHAntennaPower, frame.TypeTPAntennaPower:
		if len(plain) < CombinedPayloadSize {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrShortPayload, t, len(plain))
		}
		temp := int16(binary.LittleEndian.Uint16(plain[0:2]))
		second := binary.LittleEndian.Uint16(plain[2:4])
		battery := binary.LittleEndian.Uint16(plain[4:6])

		out := []Reading{{Name: NameTHTemperature, Value: Temperature(temp), Type: TypeTemperature, Timestamp: ts}}
		if t == frame.TypeTHAntennaPower {
			out = append(out, Reading{Name: NameTHHumidity, Value: Humidity(second), Type: TypeHumidity, Timestamp: ts})
		} else {
			out = append(out, Reading{Name: NameTPPressure, Value: Pressure(second), Type: TypePressure, Timestamp: ts})
		}

		mv := value(float64(battery))
		if battery == nullBattery {
			mv = nil
		}
		out = append(out, Reading{Name: NameMillivolt, Value: mv, Type: TypeMillivolt, Timestamp: ts})
		return append(out, antenna(plain[6], plain[7], plain[8], ts)...), nil

	case frame.TypeOnewireSingle:
		if len(plain) < OnewirePayloadSize {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrShortPayload, t, len(plain))
		}
		return []Reading{onewire(plain[0:8], plain[8:20], ts)}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrNoReadings, t)
	}
}

// PayloadSize returns the plaintext size of a single-frame message type, or
// 0 when the type carries no encrypted payload.
func PayloadSize(t frame.MessageType) int {
	switch t {
	case frame.TypeTHAntennaPower, frame.TypeTPAntennaPower:
		return CombinedPayloadSize
	case frame.TypeOnewireSingle:
		return OnewirePayloadSize
	}
	return 0
}

func antenna(signal, power, channel uint8, ts time.Time) []Reading {
	return []Reading{
		{Name: NameSignal, Value: value(float64(signal)), Type: TypePercent, Timestamp: ts},
		{Name: NameTxPower, Value: value(float64(power)), Type: TypeInt, Timestamp: ts},
		{Name: NameChannel, Value: value(float64(channel)), Type: TypeInt, Timestamp: ts},
	}
}

func onewire(rom, data []byte, ts time.Time) Reading {
	return Reading{
		Name:      onewirePrefix + hex.EncodeToString(rom),
		Value:     OnewireTemperature(data),
		Type:      TypeTemperature,
		Timestamp: ts,
		Raw:       hex.EncodeToString(data),
	}
}
