package emitter

import "errors"

// Emitter errors.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("emitter: invalid configuration")

	// ErrQueueFull is returned by Enqueue when the outbound queue is at capacity.
	ErrQueueFull = errors.New("emitter: outbound queue full")

	// ErrAlreadyStarted is returned when Start is called on a running emitter.
	ErrAlreadyStarted = errors.New("emitter: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("emitter: not started")

	// ErrStopped is returned when the emitter has been stopped.
	ErrStopped = errors.New("emitter: stopped")
)
