package gateway

import "errors"

// Package-level errors.
var (
	// ErrAlreadyStarted is returned when Start is called on a running gateway.
	ErrAlreadyStarted = errors.New("gateway: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("gateway: not started")

	// ErrAlreadyStopped is returned when Start or Stop is called on a
	// stopped gateway.
	ErrAlreadyStopped = errors.New("gateway: already stopped")

	// ErrInvalidConfig is returned when Config validation fails.
	ErrInvalidConfig = errors.New("gateway: invalid configuration")
)
