package discovery

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/radio"
)

// DNS-SD names.
const (
	// ServiceRelay is the service type of a relay's WebSocket stream.
	ServiceRelay = "_rf24relay._tcp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

// TXT record keys.
const (
	TXTKeyVersion  = "v"
	TXTKeyServer   = "srv"
	TXTKeyChannel  = "ch"
	TXTKeyPath     = "path"
	TXTKeyEncoding = "enc"
)

// DefaultPath is the WebSocket stream path.
const DefaultPath = "/ws"

// RelayTXT is the TXT record of a relay service.
type RelayTXT struct {
	// Version is the radio protocol version.
	Version uint8

	// Server is the server address devices learn from beacons.
	Server [frame.ServerAddressSize]byte

	// Channel is the radio channel.
	Channel radio.Channel

	// Path is the WebSocket stream path. Default: DefaultPath
	Path string

	// Encoding names the batch encoding ("json" or "cbor").
	Encoding string
}

// Encode returns the TXT record strings.
func (r *RelayTXT) Encode() []string {
	path := r.Path
	if path == "" {
		path = DefaultPath
	}
	txt := []string{
		TXTKeyVersion + "=" + strconv.Itoa(int(r.Version)),
		TXTKeyServer + "=" + hex.EncodeToString(r.Server[:]),
		TXTKeyChannel + "=" + strconv.Itoa(int(r.Channel)),
		TXTKeyPath + "=" + path,
	}
	if r.Encoding != "" {
		txt = append(txt, TXTKeyEncoding+"="+r.Encoding)
	}
	return txt
}

// ParseTXT parses raw TXT record strings into a map.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			result[record[:idx]] = record[idx+1:]
		}
	}
	return result
}

// ParseRelayTXT parses raw TXT records into RelayTXT. The version and
// server address are required.
func ParseRelayTXT(records []string) (*RelayTXT, error) {
	m := ParseTXT(records)
	r := &RelayTXT{Path: DefaultPath, Encoding: m[TXTKeyEncoding]}

	v, ok := m[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyVersion)
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyVersion, v)
	}
	r.Version = uint8(n)

	srv, err := hex.DecodeString(m[TXTKeyServer])
	if err != nil || len(srv) != frame.ServerAddressSize {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyServer, m[TXTKeyServer])
	}
	copy(r.Server[:], srv)

	if ch, ok := m[TXTKeyChannel]; ok {
		c, err := radio.ParseChannel(ch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTXTRecord, err)
		}
		r.Channel = c
	}
	if p := m[TXTKeyPath]; p != "" {
		r.Path = p
	}
	return r, nil
}
