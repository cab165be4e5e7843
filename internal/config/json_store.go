package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/micro-nova/panmix/internal/models"
)

// PreferencesFileName is the preferences file inside the config directory.
const PreferencesFileName = "device_preferences.json"

// JSONStore is an atomic JSON file store. Debouncing is the caller's job;
// every Save writes immediately.
type JSONStore struct {
	mu          sync.Mutex
	path        string
	lastWritten []byte
	onSave      func(err error)
}

// NewJSONStore creates a new JSON store in the given config directory.
func NewJSONStore(configDir string) *JSONStore {
	return &JSONStore{
		path: filepath.Join(configDir, PreferencesFileName),
	}
}

// Path returns the file path used by this store.
func (s *JSONStore) Path() string { return s.path }

// OnSave registers a hook called after every write attempt with its result.
// Used for metrics.
func (s *JSONStore) OnSave(fn func(err error)) {
	s.mu.Lock()
	s.onSave = fn
	s.mu.Unlock()
}

// Load reads the settings from disk. Returns an empty map on ENOENT or parse
// errors.
func (s *JSONStore) Load() map[string]models.DeviceSettings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("config: preferences file not found, starting empty", "path", s.path)
		} else {
			slog.Error("config: failed to read preferences", "path", s.path, "err", err)
		}
		return make(map[string]models.DeviceSettings)
	}

	var settings map[string]models.DeviceSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		slog.Error("config: corrupt preferences JSON, starting empty", "path", s.path, "err", err)
		return make(map[string]models.DeviceSettings)
	}
	return normalize(settings)
}

// Save writes the settings to disk atomically. Errors are logged; the caller
// keeps its in-memory copy and the next Save retries.
func (s *JSONStore) Save(settings map[string]models.DeviceSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.writeAtomic(settings)
	if err != nil {
		slog.Error("config: failed to write preferences", "path", s.path, "err", err)
	} else {
		slog.Debug("config: saved preferences", "path", s.path, "devices", len(settings))
	}
	if s.onSave != nil {
		s.onSave(err)
	}
}

// WrittenByStore reports whether data matches the last content this store
// wrote. The file watcher uses it to ignore our own writes.
func (s *JSONStore) WrittenByStore(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWritten != nil && bytes.Equal(data, s.lastWritten)
}

func (s *JSONStore) writeAtomic(settings map[string]models.DeviceSettings) error {
	if settings == nil {
		settings = map[string]models.DeviceSettings{}
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	// Write to temp file, then rename (atomic on Linux)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	s.lastWritten = data
	return nil
}

var _ Store = (*JSONStore)(nil)
