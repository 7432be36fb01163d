package reading

import (
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
)

// Type tags the unit of a reading value.
type Type string

// Reading types.
const (
	TypeTemperature Type = "temperature"
	TypeHumidity    Type = "humidite"
	TypePressure    Type = "pression"
	TypeMillivolt   Type = "millivolt"
	TypePercent     Type = "pct"
	TypeInt         Type = "int"
	TypeBool        Type = "bool"
	TypeHex         Type = "hex"
)

// Reading names.
const (
	NameTHTemperature = "th/temperature"
	NameTHHumidity    = "th/humidite"
	NameTPTemperature = "tp/temperature"
	NameTPPressure    = "tp/pression"
	NameMillivolt     = "batterie/millivolt"
	NameReserve       = "batterie/reserve"
	NameAlert         = "batterie/alerte"
	NameSignal        = "antenne/signal"
	NameTxPower       = "antenne/force"
	NameChannel       = "antenne/canal"

	onewirePrefix = "onewire/"
)

// Reading is one named sensor value.
type Reading struct {
	Name string `json:"name" cbor:"1,keyasint"`
	// Value is nil when the device reported the "no data" sentinel.
	Value     *float64  `json:"value" cbor:"2,keyasint"`
	Type      Type      `json:"type" cbor:"3,keyasint"`
	Timestamp time.Time `json:"timestamp" cbor:"4,keyasint"`
	// Raw holds the undecoded probe bytes of onewire readings, hex encoded.
	Raw string `json:"raw,omitempty" cbor:"5,keyasint,omitempty"`
}

// IsNull reports whether the reading carries no value.
func (r Reading) IsNull() bool {
	return r.Value == nil
}

// Batch is the set of readings produced by one verified transmission.
type Batch struct {
	Address  frame.Address `json:"mesh_address" cbor:"1,keyasint"`
	UUID     frame.UUID    `json:"uuid_senseur" cbor:"2,keyasint"`
	Readings []Reading     `json:"senseurs" cbor:"3,keyasint"`
}

// NewBatch creates an empty batch for a device.
func NewBatch(addr frame.Address, uuid frame.UUID) *Batch {
	return &Batch{Address: addr, UUID: uuid}
}

// Add appends readings to the batch. A later reading with the same name
// replaces the earlier one.
func (b *Batch) Add(rs ...Reading) {
	for _, r := range rs {
		if i := b.index(r.Name); i >= 0 {
			b.Readings[i] = r
			continue
		}
		b.Readings = append(b.Readings, r)
	}
}

// Get returns the reading with the given name.
func (b *Batch) Get(name string) (Reading, bool) {
	if i := b.index(name); i >= 0 {
		return b.Readings[i], true
	}
	return Reading{}, false
}

// Len returns the number of readings.
func (b *Batch) Len() int {
	return len(b.Readings)
}

func (b *Batch) index(name string) int {
	for i := range b.Readings {
		if b.Readings[i].Name == name {
			return i
		}
	}
	return -1
}

func value(v float64) *float64 {
	return &v
}
