package assembler

import "errors"

// Errors
var (
	// ErrAuthentication is returned when a tag does not verify.
	ErrAuthentication = errors.New("assembler: authentication failed")

	// ErrSequenceGap is returned when a final frame arrives before every
	// preceding frame was consumed.
	ErrSequenceGap = errors.New("assembler: missing frames")

	// ErrNoSharedSecret is returned when an encrypted message comes from a
	// device without a completed key exchange.
	ErrNoSharedSecret = errors.New("assembler: device has no shared secret")

	// ErrUnknownFrame is returned when a transmission contains a payload
	// frame of an unknown type.
	ErrUnknownFrame = errors.New("assembler: unknown frame type")

	// ErrNoAssembly is returned for a payload frame without a preceding header.
	ErrNoAssembly = errors.New("assembler: no assembly for address")

	// ErrUnknownDevice is returned for a self-contained message from an
	// address with no registered device.
	ErrUnknownDevice = errors.New("assembler: unknown device")

	// ErrNotMultiFrame is returned by Begin for a self-contained message type.
	ErrNotMultiFrame = errors.New("assembler: message type is not multi-frame")

	// ErrUnsupportedMessage is returned for self-contained message types
	// without a known layout.
	ErrUnsupportedMessage = errors.New("assembler: unsupported message type")

	// ErrInvalidConfig is returned by New for an incomplete Config.
	ErrInvalidConfig = errors.New("assembler: invalid config")
)
