package assembler

import (
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/registry"
)

// Defaults.
const (
	// DefaultAssemblyTimeout is how long an assembly may stay idle before
	// Expire drops it.
	DefaultAssemblyTimeout = 30 * time.Second

	// DefaultMaxPending bounds the frames buffered ahead of a gap.
	DefaultMaxPending = 32
)

// Devices is the registry view used by the assembler.
// *registry.Registry implements it.
type Devices interface {
	ByAddress(addr frame.Address) (*registry.Device, bool)
	ByUUID(uuid frame.UUID) (*registry.Device, bool)
	UpdateIV(uuid frame.UUID, iv []byte) error
	PromoteIV(uuid frame.UUID, iv []byte) error
}

// Config configures an Assembler.
type Config struct {
	// Devices is required.
	Devices Devices

	// AssemblyTimeout is the idle time after which Expire drops an
	// assembly. Zero selects DefaultAssemblyTimeout; a negative value
	// disables expiry, so only a new header replaces a stalled assembly.
	AssemblyTimeout time.Duration

	// MaxPending bounds the out-of-order frames buffered per assembly.
	MaxPending int

	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Devices == nil {
		return fmt.Errorf("%w: devices required", ErrInvalidConfig)
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("%w: negative MaxPending", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.AssemblyTimeout == 0 {
		c.AssemblyTimeout = DefaultAssemblyTimeout
	}
	if c.MaxPending == 0 {
		c.MaxPending = DefaultMaxPending
	}
}
