package registry

import (
	"bytes"

	"github.com/backkem/rf24relay/pkg/frame"
)

// SecretSize is the size of a derived shared secret. The first
// CipherKeySize bytes key the message cipher.
const (
	SecretSize    = 32
	CipherKeySize = 16
)

// Device is a paired device record.
type Device struct {
	UUID    frame.UUID
	Address frame.Address

	// PublicKey is nil until a key exchange completes.
	PublicKey []byte

	// SharedSecret is derived from PublicKey; nil when unknown.
	SharedSecret []byte

	// IV is the confirmed IV used for self-contained messages.
	IV []byte

	// IVCandidate is a replacement IV the device may already be using. It
	// is tried before IV and cleared once a message verifies.
	IVCandidate []byte
}

// CipherKey returns the message cipher key, or nil without a shared secret.
func (d *Device) CipherKey() []byte {
	if len(d.SharedSecret) < CipherKeySize {
		return nil
	}
	return d.SharedSecret[:CipherKeySize]
}

// HasSecret reports whether the device completed a key exchange.
func (d *Device) HasSecret() bool {
	return d.CipherKey() != nil
}

// Clone returns a deep copy.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	return &Device{
		UUID:         d.UUID,
		Address:      d.Address,
		PublicKey:    cloneBytes(d.PublicKey),
		SharedSecret: cloneBytes(d.SharedSecret),
		IV:           cloneBytes(d.IV),
		IVCandidate:  cloneBytes(d.IVCandidate),
	}
}

// Equal reports whether two records hold the same values.
func (d *Device) Equal(o *Device) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.UUID == o.UUID &&
		d.Address == o.Address &&
		bytes.Equal(d.PublicKey, o.PublicKey) &&
		bytes.Equal(d.SharedSecret, o.SharedSecret) &&
		bytes.Equal(d.IV, o.IV) &&
		bytes.Equal(d.IVCandidate, o.IVCandidate)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
