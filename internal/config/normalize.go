package config

import (
	"log/slog"

	"github.com/micro-nova/panmix/internal/models"
)

// normalize drops entries without a device ID and clamps every value into
// range. Hand-edited files are the usual source of both.
func normalize(settings map[string]models.DeviceSettings) map[string]models.DeviceSettings {
	out := make(map[string]models.DeviceSettings, len(settings))
	for id, s := range settings {
		if id == "" {
			slog.Warn("config: dropping settings entry with empty device id")
			continue
		}
		c := s.Clamp()
		if c != s {
			slog.Warn("config: clamped out-of-range settings", "id", id,
				"volume", s.Volume, "pan", s.Pan)
		}
		out[id] = c
	}
	return out
}

func copySettings(in map[string]models.DeviceSettings) map[string]models.DeviceSettings {
	out := make(map[string]models.DeviceSettings, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
