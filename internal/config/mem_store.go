package config

import (
	"sync"

	"github.com/micro-nova/panmix/internal/models"
)

// MemStore is an in-memory Store for tests that never writes to disk.
type MemStore struct {
	mu       sync.Mutex
	settings map[string]models.DeviceSettings
	saves    int
}

// NewMemStore returns a new in-memory store seeded with a copy of initial
// (which may be nil).
func NewMemStore(initial map[string]models.DeviceSettings) *MemStore {
	m := &MemStore{}
	if initial != nil {
		m.settings = copySettings(initial)
	}
	return m
}

// Load returns a copy of the stored settings.
func (m *MemStore) Load() map[string]models.DeviceSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySettings(m.settings)
}

// Save stores a copy of the given settings and counts the write.
func (m *MemStore) Save(settings map[string]models.DeviceSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = copySettings(settings)
	m.saves++
}

// Saves returns how many times Save has been called.
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Path returns ":memory:" to indicate this is an in-memory store.
func (m *MemStore) Path() string { return ":memory:" }

// Ensure MemStore implements config.Store
var _ Store = (*MemStore)(nil)
