package gateway

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
)

// DeviceStatus is the public view of a registered device.
type DeviceStatus struct {
	UUID      string `json:"uuid"`
	Address   uint8  `json:"address"`
	PublicKey string `json:"public_key,omitempty"`
	Keyed     bool   `json:"keyed"`
	IV        string `json:"iv,omitempty"`
}

// DeviceStatuses returns the device table without secrets.
func (g *Gateway) DeviceStatuses() []DeviceStatus {
	devices := g.registry.Devices()
	out := make([]DeviceStatus, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceStatus{
			UUID:      d.UUID.String(),
			Address:   uint8(d.Address),
			PublicKey: hex.EncodeToString(d.PublicKey),
			Keyed:     d.HasSecret(),
			IV:        hex.EncodeToString(d.IV),
		})
	}
	return out
}

// StatusHandler serves GET /devices and GET /status as JSON.
func (g *Gateway) StatusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, g.DeviceStatuses())
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, struct {
			State string `json:"state"`
			Stats Stats  `json:"stats"`
		}{g.State().String(), g.Stats()})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
