package emitter

import (
	"fmt"
	"time"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/radio"
	"github.com/pion/logging"
)

// Defaults.
const (
	DefaultBeaconInterval = 250 * time.Millisecond
	DefaultThrottle       = 50 * time.Millisecond
	DefaultQueueSize      = 64
	DefaultSendTimeout    = time.Second
)

// Config configures an Emitter.
type Config struct {
	// Transport is the radio the emitter writes to.
	// Required.
	Transport radio.Transport

	// Server is the server address advertised by beacons.
	Server [frame.ServerAddressSize]byte

	// BeaconInterval is the time between beacons. Negative disables beacons.
	// Default: DefaultBeaconInterval
	BeaconInterval time.Duration

	// Throttle is the pause before each queued frame.
	// Default: DefaultThrottle
	Throttle time.Duration

	// QueueSize is the outbound queue capacity.
	// Default: DefaultQueueSize
	QueueSize int

	// SendTimeout bounds a single radio write.
	// Default: DefaultSendTimeout
	SendTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Transport == nil {
		return fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: negative queue size", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.BeaconInterval == 0 {
		c.BeaconInterval = DefaultBeaconInterval
	}
	if c.Throttle == 0 {
		c.Throttle = DefaultThrottle
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
}
