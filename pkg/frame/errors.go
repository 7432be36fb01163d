package frame

import "errors"

// Codec errors.
var (
	// ErrMalformedFrame is returned when a frame has the wrong length or an
	// unsupported protocol version.
	ErrMalformedFrame = errors.New("frame: malformed frame")

	// ErrUnknownType is returned when decoding a server frame whose message
	// type is not known.
	ErrUnknownType = errors.New("frame: unknown message type")

	// ErrInvalidUUID is returned when parsing a device UUID fails.
	ErrInvalidUUID = errors.New("frame: invalid uuid")
)
