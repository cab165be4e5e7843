package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// BehaviorFileName is the optional timing configuration file inside the
// config directory.
const BehaviorFileName = "panmix.toml"

// Behavior holds the timing knobs for notification debouncing, echo
// suppression and auto-save.
type Behavior struct {
	OSVolumeNotificationDebounceMs int `toml:"os_volume_notification_debounce_ms"`
	UserInteractionGracePeriodMs   int `toml:"user_interaction_grace_period_ms"`
	OSPanNotificationDebounceMs    int `toml:"os_pan_notification_debounce_ms"`
	AutoSaveDelaySeconds           int `toml:"auto_save_delay_seconds"`
	MaxOSWritesPerSecond           int `toml:"max_os_writes_per_second"`
}

// DefaultBehavior returns the built-in timing settings.
func DefaultBehavior() Behavior {
	return Behavior{
		OSVolumeNotificationDebounceMs: 300,
		UserInteractionGracePeriodMs:   200,
		OSPanNotificationDebounceMs:    400,
		AutoSaveDelaySeconds:           3,
		MaxOSWritesPerSecond:           60,
	}
}

// LoadBehavior reads panmix.toml from configDir. A missing file yields the
// defaults with no error. A malformed file yields the defaults and the parse
// error. Non-positive fields fall back to their defaults individually.
func LoadBehavior(configDir string) (Behavior, error) {
	path := filepath.Join(configDir, BehaviorFileName)
	b := DefaultBehavior()
	if _, err := toml.DecodeFile(path, &b); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultBehavior(), nil
		}
		return DefaultBehavior(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	return b.withDefaults(), nil
}

func (b Behavior) withDefaults() Behavior {
	def := DefaultBehavior()
	fix := func(name string, v *int, d int) {
		if *v <= 0 {
			slog.Warn("config: invalid behavior value, using default", "key", name, "value", *v, "default", d)
			*v = d
		}
	}
	fix("os_volume_notification_debounce_ms", &b.OSVolumeNotificationDebounceMs, def.OSVolumeNotificationDebounceMs)
	fix("user_interaction_grace_period_ms", &b.UserInteractionGracePeriodMs, def.UserInteractionGracePeriodMs)
	fix("os_pan_notification_debounce_ms", &b.OSPanNotificationDebounceMs, def.OSPanNotificationDebounceMs)
	fix("auto_save_delay_seconds", &b.AutoSaveDelaySeconds, def.AutoSaveDelaySeconds)
	fix("max_os_writes_per_second", &b.MaxOSWritesPerSecond, def.MaxOSWritesPerSecond)
	return b
}

// VolumeDebounce is the per-device OS volume notification window.
func (b Behavior) VolumeDebounce() time.Duration {
	return time.Duration(b.OSVolumeNotificationDebounceMs) * time.Millisecond
}

// GracePeriod is how long OS volume echoes are ignored after a user edit.
func (b Behavior) GracePeriod() time.Duration {
	return time.Duration(b.UserInteractionGracePeriodMs) * time.Millisecond
}

// PanDebounce is the per-device property-change window.
func (b Behavior) PanDebounce() time.Duration {
	return time.Duration(b.OSPanNotificationDebounceMs) * time.Millisecond
}

// AutoSaveDelay is the trailing window before preferences are written.
func (b Behavior) AutoSaveDelay() time.Duration {
	return time.Duration(b.AutoSaveDelaySeconds) * time.Second
}
