package registry

import "errors"

// Registry errors.
var (
	// ErrAddressExhausted is returned when every device address is in use.
	ErrAddressExhausted = errors.New("registry: no free device address")
	// ErrDeviceNotFound is returned when no record matches the UUID.
	ErrDeviceNotFound = errors.New("registry: device not found")
	// ErrAddressConflict is returned when an address is held by another device.
	ErrAddressConflict = errors.New("registry: address held by another device")
	// ErrInvalidAddress is returned for addresses outside the device range.
	ErrInvalidAddress = errors.New("registry: address outside device range")
)
