package relay

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestJSONShape(t *testing.T) {
	data, err := EncodingJSON.Marshal(testBatch())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var doc struct {
		Address  int    `json:"mesh_address"`
		UUID     string `json:"uuid_senseur"`
		Readings []struct {
			Name  string   `json:"name"`
			Value *float64 `json:"value"`
			Type  string   `json:"type"`
		} `json:"senseurs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if doc.Address != 12 || doc.UUID != "0102030405060708090a0b0c0d0e0f10" {
		t.Errorf("envelope = %d %s", doc.Address, doc.UUID)
	}
	if len(doc.Readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(doc.Readings))
	}
	if r := doc.Readings[0]; r.Name != "th/temperature" || r.Value == nil || *r.Value != 21.3 || r.Type != "temperature" {
		t.Errorf("reading 0 = %+v", r)
	}
	if r := doc.Readings[1]; r.Value != nil {
		t.Errorf("null reading encoded as %v", *r.Value)
	}
}

func TestEncodingRoundTrip(t *testing.T) {
	for _, enc := range []Encoding{EncodingJSON, EncodingCBOR} {
		t.Run(enc.String(), func(t *testing.T) {
			want := testBatch()
			data, err := enc.Marshal(want)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got, err := enc.Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.UUID != want.UUID || got.Address != want.Address {
				t.Errorf("envelope = %v/%d, want %v/%d", got.UUID, got.Address, want.UUID, want.Address)
			}
			if len(got.Readings) != len(want.Readings) {
				t.Fatalf("readings = %d, want %d", len(got.Readings), len(want.Readings))
			}
			for i := range want.Readings {
				g, w := got.Readings[i], want.Readings[i]
				if g.Name != w.Name || g.Type != w.Type || !g.Timestamp.Equal(w.Timestamp) || !reflect.DeepEqual(g.Value, w.Value) {
					t.Errorf("reading %d = %+v, want %+v", i, g, w)
				}
			}
		})
	}
}

func TestCBORCompact(t *testing.T) {
	j, _ := EncodingJSON.Marshal(testBatch())
	c, err := EncodingCBOR.Marshal(testBatch())
	if err != nil {
		t.Fatal(err)
	}
	if len(c) >= len(j) {
		t.Errorf("cbor = %d bytes, json = %d bytes", len(c), len(j))
	}
}

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in   string
		want Encoding
		err  bool
	}{
		{"", EncodingJSON, false},
		{"json", EncodingJSON, false},
		{"CBOR", EncodingCBOR, false},
		{"xml", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseEncoding(tt.in)
		if tt.err {
			if !errors.Is(err, ErrUnknownEncoding) {
				t.Errorf("ParseEncoding(%q) error = %v, want %v", tt.in, err, ErrUnknownEncoding)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseEncoding(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}

	if EncodingCBOR.ContentType() != "application/cbor" {
		t.Errorf("ContentType() = %s", EncodingCBOR.ContentType())
	}
}
