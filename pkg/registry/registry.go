package registry

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/rf24relay/pkg/frame"
)

// SecretDeriver computes the shared secret for a device public key.
// *crypto.X25519KeyPair implements it.
type SecretDeriver interface {
	SharedSecret(peer []byte) ([]byte, error)
}

// Config configures a Registry.
type Config struct {
	// Storage persists the table. Defaults to a MemoryStorage.
	Storage Storage

	// Deriver recomputes shared secrets when records are loaded. Without
	// one, loaded devices have no shared secret until their next key
	// exchange.
	Deriver SecretDeriver

	LoggerFactory logging.LoggerFactory
}

// Registry manages the device table.
//
// Thread Safety: All methods are safe for concurrent use. Protocol state is
// only mutated by the gateway worker; the lock lets operator commands read
// the table concurrently.
type Registry struct {
	mu      sync.RWMutex
	storage Storage
	deriver SecretDeriver
	log     logging.LeveledLogger

	loaded bool
	byAddr [256]*Device
	byUUID map[frame.UUID]*Device
}

// New creates a registry. The table is loaded from storage on first use.
func New(config Config) *Registry {
	if config.Storage == nil {
		config.Storage = NewMemoryStorage()
	}
	r := &Registry{
		storage: config.Storage,
		deriver: config.Deriver,
		byUUID:  make(map[frame.UUID]*Device),
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("registry")
	}
	return r
}

// Load reads the table from storage. It is called implicitly by every other
// method; calling it explicitly surfaces storage errors at startup.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) ensureLoaded() error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Load()
}

func (r *Registry) loadLocked() error {
	if r.loaded {
		return nil
	}
	devices, err := r.storage.Load()
	if err != nil {
		return fmt.Errorf("registry: load: %w", err)
	}

	for _, d := range devices {
		if !d.Address.IsDevice() {
			r.warnf("skipping device %s with address %d", d.UUID, d.Address)
			continue
		}
		if other := r.byAddr[d.Address]; other != nil {
			r.warnf("skipping device %s: address %d already held by %s", d.UUID, d.Address, other.UUID)
			continue
		}
		d = d.Clone()
		d.SharedSecret = nil
		if len(d.PublicKey) > 0 && r.deriver != nil {
			secret, err := r.deriver.SharedSecret(d.PublicKey)
			if err != nil {
				r.warnf("device %s: cannot derive shared secret: %v", d.UUID, err)
			} else {
				d.SharedSecret = secret
			}
		}
		r.byAddr[d.Address] = d
		r.byUUID[d.UUID] = d
	}

	r.loaded = true
	if r.log != nil {
		r.log.Debugf("loaded %d devices", len(r.byUUID))
	}
	return nil
}

// ReserveAddress returns the address of a known device, or allocates the
// lowest free address in [2, 253] and persists the new record before
// returning it.
func (r *Registry) ReserveAddress(uuid frame.UUID) (frame.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return frame.AddressUnassigned, err
	}
	if d, ok := r.byUUID[uuid]; ok {
		return d.Address, nil
	}

	addr, ok := r.freeAddressLocked()
	if !ok {
		return frame.AddressUnassigned, ErrAddressExhausted
	}
	if err := r.commitLocked(&Device{UUID: uuid, Address: addr}); err != nil {
		return frame.AddressUnassigned, err
	}
	if r.log != nil {
		r.log.Infof("device %s reserved address %d", uuid, addr)
	}
	return addr, nil
}

func (r *Registry) freeAddressLocked() (frame.Address, bool) {
	for a := frame.MinDeviceAddress; a <= frame.MaxDeviceAddress; a++ {
		if r.byAddr[a] == nil {
			return a, true
		}
	}
	return frame.AddressUnassigned, false
}

// ByAddress returns a clone of the device holding addr.
func (r *Registry) ByAddress(addr frame.Address) (*Device, bool) {
	if err := r.ensureLoaded(); err != nil {
		r.warnf("%v", err)
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	d := r.byAddr[addr]
	if d == nil {
		return nil, false
	}
	return d.Clone(), true
}

// ByUUID returns a clone of the device with the given UUID.
func (r *Registry) ByUUID(uuid frame.UUID) (*Device, bool) {
	if err := r.ensureLoaded(); err != nil {
		r.warnf("%v", err)
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byUUID[uuid]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// UpdateKeys stores the public key and shared secret of a device. An unknown
// device is created at addr, which must be free. A known device keeps its
// granted address.
func (r *Registry) UpdateKeys(uuid frame.UUID, addr frame.Address, publicKey, sharedSecret []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}

	d, ok := r.byUUID[uuid]
	if ok {
		if d.Address != addr {
			r.warnf("device %s sent keys from address %d, registered at %d", uuid, addr, d.Address)
		}
		if bytes.Equal(d.PublicKey, publicKey) && bytes.Equal(d.SharedSecret, sharedSecret) {
			return nil
		}
		d = d.Clone()
	} else {
		if !addr.IsDevice() {
			return fmt.Errorf("%w: %d", ErrInvalidAddress, addr)
		}
		if other := r.byAddr[addr]; other != nil {
			return fmt.Errorf("%w: %d held by %s", ErrAddressConflict, addr, other.UUID)
		}
		d = &Device{UUID: uuid, Address: addr}
	}

	d.PublicKey = cloneBytes(publicKey)
	d.SharedSecret = cloneBytes(sharedSecret)
	return r.commitLocked(d)
}

// UpdateIV records iv as the candidate IV of a device. It also becomes the
// current IV when the device has none yet.
func (r *Registry) UpdateIV(uuid frame.UUID, iv []byte) error {
	return r.mutate(uuid, func(d *Device) {
		if d.IV == nil {
			d.IV = cloneBytes(iv)
		}
		d.IVCandidate = cloneBytes(iv)
	})
}

// PromoteIV makes iv the current IV of a device and clears the candidate.
func (r *Registry) PromoteIV(uuid frame.UUID, iv []byte) error {
	return r.mutate(uuid, func(d *Device) {
		d.IV = cloneBytes(iv)
		d.IVCandidate = nil
	})
}

func (r *Registry) mutate(uuid frame.UUID, fn func(*Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}
	cur, ok := r.byUUID[uuid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, uuid)
	}
	d := cur.Clone()
	fn(d)
	if d.Equal(cur) {
		return nil
	}
	return r.commitLocked(d)
}

// Forget removes a device and frees its address.
func (r *Registry) Forget(uuid frame.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}
	d, ok := r.byUUID[uuid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, uuid)
	}

	snapshot := r.snapshotLocked(d.UUID, nil)
	if err := r.storage.Save(snapshot); err != nil {
		return fmt.Errorf("registry: save: %w", err)
	}
	delete(r.byUUID, uuid)
	r.byAddr[d.Address] = nil
	if r.log != nil {
		r.log.Infof("device %s forgotten, address %d released", uuid, d.Address)
	}
	return nil
}

// Devices returns clones of every device sorted by address.
func (r *Registry) Devices() []*Device {
	if err := r.ensureLoaded(); err != nil {
		r.warnf("%v", err)
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.byUUID))
	for _, d := range r.byAddr {
		if d != nil {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	if err := r.ensureLoaded(); err != nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUUID)
}

// commitLocked persists the table with d replacing its previous record, then
// installs d.
func (r *Registry) commitLocked(d *Device) error {
	if err := r.storage.Save(r.snapshotLocked(d.UUID, d)); err != nil {
		return fmt.Errorf("registry: save: %w", err)
	}
	if prev, ok := r.byUUID[d.UUID]; ok && prev.Address != d.Address {
		r.byAddr[prev.Address] = nil
	}
	r.byUUID[d.UUID] = d
	r.byAddr[d.Address] = d
	return nil
}

// snapshotLocked lists the table sorted by address, with the record for uuid
// replaced by d, or dropped when d is nil.
func (r *Registry) snapshotLocked(uuid frame.UUID, d *Device) []*Device {
	out := make([]*Device, 0, len(r.byUUID)+1)
	for _, x := range r.byUUID {
		if x.UUID != uuid {
			out = append(out, x)
		}
	}
	if d != nil {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (r *Registry) warnf(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Warnf(format, args...)
	}
}
