package radio

import "errors"

// Radio errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport or queue.
	ErrClosed = errors.New("radio: closed")

	// ErrNoHandler is returned when no frame handler is configured.
	ErrNoHandler = errors.New("radio: no frame handler configured")

	// ErrAlreadyStarted is returned when Start is called on a running transport.
	ErrAlreadyStarted = errors.New("radio: already started")

	// ErrNotStarted is returned when an operation requires a started transport.
	ErrNotStarted = errors.New("radio: not started")

	// ErrQueueFull is returned when the receive FIFO is at capacity.
	ErrQueueFull = errors.New("radio: receive queue full")

	// ErrInvalidChannel is returned for an unknown channel or environment name.
	ErrInvalidChannel = errors.New("radio: invalid channel")

	// ErrInvalidRecord is returned when the serial bridge sends a malformed record.
	ErrInvalidRecord = errors.New("radio: invalid bridge record")

	// ErrSendFailed is returned when the bridge reports a failed transmission.
	ErrSendFailed = errors.New("radio: send failed")
)
