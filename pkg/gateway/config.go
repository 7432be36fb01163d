package gateway

import (
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/rf24relay/pkg/assembler"
	"github.com/backkem/rf24relay/pkg/identity"
	"github.com/backkem/rf24relay/pkg/radio"
	"github.com/backkem/rf24relay/pkg/registry"
	"github.com/backkem/rf24relay/pkg/relay"
)

// Defaults.
const (
	// DefaultExpireInterval is how often stalled assemblies are checked.
	DefaultExpireInterval = time.Second

	// DefaultPublishTimeout bounds a single Sink.Publish call.
	DefaultPublishTimeout = 5 * time.Second
)

// Config holds all configuration for a Gateway.
type Config struct {
	// Transport is the radio. Its FrameHandler must push into Queue.
	// Required.
	Transport radio.Transport

	// Queue is the receive FIFO the worker drains.
	// Required.
	Queue *radio.Queue

	// Identity provides the server address, network address and key pair.
	// Required.
	Identity *identity.Identity

	// Registry is the device table.
	// Required.
	Registry *registry.Registry

	// Sink receives verified reading batches. If nil, batches are only
	// logged.
	Sink relay.Sink

	// AssemblyTimeout is passed to the assembler. Zero selects the
	// assembler default; negative disables expiry.
	AssemblyTimeout time.Duration

	// ExpireInterval is the period of the stalled assembly sweep.
	// Default: DefaultExpireInterval
	ExpireInterval time.Duration

	// PublishTimeout bounds each Sink.Publish call.
	// Default: DefaultPublishTimeout
	PublishTimeout time.Duration

	// BeaconInterval and Throttle are passed to the emitter. Zero selects
	// the emitter defaults.
	BeaconInterval time.Duration
	Throttle       time.Duration

	// OnResult is called from the worker for every verified message.
	OnResult func(res *assembler.Result)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch {
	case c.Transport == nil:
		return fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	case c.Queue == nil:
		return fmt.Errorf("%w: receive queue is required", ErrInvalidConfig)
	case c.Identity == nil || c.Identity.Keys == nil:
		return fmt.Errorf("%w: identity is required", ErrInvalidConfig)
	case c.Registry == nil:
		return fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.ExpireInterval <= 0 {
		c.ExpireInterval = DefaultExpireInterval
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
}
