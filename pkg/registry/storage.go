package registry

import (
	"sync"
)

// Storage persists the device table.
//
// Save receives the full table and must not retain the slice or the records.
// All methods must be safe for concurrent use.
type Storage interface {
	Load() ([]*Device, error)
	Save(devices []*Device) error
}

// MemoryStorage is an in-memory Storage implementation.
// Useful for testing. Data is lost when the process exits.
type MemoryStorage struct {
	mu      sync.RWMutex
	devices []*Device
	saves   int
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load returns clones of the stored devices.
func (m *MemoryStorage) Load() ([]*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Device, len(m.devices))
	for i, d := range m.devices {
		out[i] = d.Clone()
	}
	return out, nil
}

// Save replaces the stored table. Shared secrets are dropped, as with
// FileStorage.
func (m *MemoryStorage) Save(devices []*Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices = make([]*Device, len(devices))
	for i, d := range devices {
		c := d.Clone()
		c.SharedSecret = nil
		m.devices[i] = c
	}
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStorage) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
