package relay

import "errors"

// Relay errors.
var (
	// ErrInvalidConfig is returned when a sink configuration is invalid.
	ErrInvalidConfig = errors.New("relay: invalid configuration")

	// ErrUnknownEncoding is returned for an unsupported batch encoding.
	ErrUnknownEncoding = errors.New("relay: unknown encoding")

	// ErrNotConnected is returned when publishing before the MQTT client connected.
	ErrNotConnected = errors.New("relay: not connected")

	// ErrClosed is returned when publishing to a closed sink.
	ErrClosed = errors.New("relay: closed")
)
