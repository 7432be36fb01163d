package relay

import (
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/reading"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func testBatch() *reading.Batch {
	var uuid frame.UUID
	for i := range uuid {
		uuid[i] = byte(i + 1)
	}
	b := reading.NewBatch(12, uuid)
	b.Add(
		reading.Reading{Name: reading.NameTHTemperature, Value: ptr(21.3), Type: reading.TypeTemperature, Timestamp: t0},
		reading.Reading{Name: reading.NameTHHumidity, Value: nil, Type: reading.TypeHumidity, Timestamp: t0},
	)
	return b
}
