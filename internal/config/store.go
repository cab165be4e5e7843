// Package config handles loading and saving panmix device preferences and
// the behaviour settings that tune debounce and save timing.
package config

import "github.com/micro-nova/panmix/internal/models"

// Store is the interface for persisting device preferences.
// Both methods are best-effort: failures are logged, never returned.
type Store interface {
	// Load reads all persisted settings. Returns an empty map if the file is
	// missing or cannot be parsed.
	Load() map[string]models.DeviceSettings

	// Save rewrites the whole preferences map.
	Save(settings map[string]models.DeviceSettings)

	// Path returns the file path used by this store.
	Path() string
}
