package reading

import "errors"

// Errors
var (
	// ErrShortPayload is returned when a decrypted payload is smaller than its
	// message layout.
	ErrShortPayload = errors.New("reading: payload too short")

	// ErrNoReadings is returned for message types that carry no readings.
	ErrNoReadings = errors.New("reading: message type carries no readings")
)
