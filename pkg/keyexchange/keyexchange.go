// Package keyexchange completes the device key exchange.
//
// A device sends its X25519 public key in two frames of a "new key"
// transmission. The second frame carries CRC-32(uuid || public key). When
// the checksum matches, the server derives the shared secret, stores it in
// the registry and answers with its own public key split over two frames.
// Mismatches are dropped without any reply.
package keyexchange

import (
	"errors"
	"fmt"

	"github.com/pion/logging"

	"github.com/backkem/rf24relay/pkg/crypto"
	"github.com/backkem/rf24relay/pkg/frame"
)

// Errors
var (
	ErrIncomplete       = errors.New("keyexchange: missing key frame")
	ErrChecksumMismatch = errors.New("keyexchange: public key checksum mismatch")
	ErrInvalidPublicKey = errors.New("keyexchange: invalid device public key")
	ErrInvalidConfig    = errors.New("keyexchange: invalid config")
)

// KeyAgreement is the server static key pair.
// *crypto.X25519KeyPair implements it.
type KeyAgreement interface {
	PublicKey() [crypto.X25519KeySize]byte
	SharedSecret(peer []byte) ([]byte, error)
}

// KeyStore records the outcome of a key exchange.
// *registry.Registry implements it.
type KeyStore interface {
	UpdateKeys(uuid frame.UUID, addr frame.Address, publicKey, sharedSecret []byte) error
}

// Config configures an Exchange.
type Config struct {
	Keys          KeyAgreement
	Store         KeyStore
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Keys == nil {
		return fmt.Errorf("%w: key pair required", ErrInvalidConfig)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: key store required", ErrInvalidConfig)
	}
	return nil
}

// Request is the key material of one assembled "new key" transmission.
type Request struct {
	UUID    frame.UUID
	Address frame.Address
	Part1   *frame.KeyPart1
	Part2   *frame.KeyPart2
}

// Exchange completes key exchanges. It holds no per-device state.
type Exchange struct {
	keys  KeyAgreement
	store KeyStore
	log   logging.LeveledLogger
}

// New creates an Exchange.
func New(config Config) (*Exchange, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &Exchange{keys: config.Keys, store: config.Store}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("keyexchange")
	}
	return e, nil
}

// Complete verifies the device public key, stores the derived shared secret
// and returns the two reply frames addressed to the device. On any error no
// frame is returned and the store is left untouched.
func (e *Exchange) Complete(req Request) (*frame.ServerKey1, *frame.ServerKey2, error) {
	if req.Part1 == nil || req.Part2 == nil {
		return nil, nil, ErrIncomplete
	}

	pub := frame.JoinPublicKey(req.Part1, req.Part2)
	if sum := crypto.KeyChecksum(req.UUID[:], pub[:]); sum != req.Part2.Checksum {
		return nil, nil, fmt.Errorf("%w: device %s computed %#08x, received %#08x",
			ErrChecksumMismatch, req.UUID, sum, req.Part2.Checksum)
	}

	secret, err := e.keys.SharedSecret(pub[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	if err := e.store.UpdateKeys(req.UUID, req.Address, pub[:], secret); err != nil {
		return nil, nil, fmt.Errorf("keyexchange: store keys: %w", err)
	}

	if e.log != nil {
		e.log.Infof("key exchange completed for device %s at address %d", req.UUID, req.Address)
	}
	k1, k2 := frame.NewServerKeyFrames(req.Address, e.keys.PublicKey())
	return k1, k2, nil
}
