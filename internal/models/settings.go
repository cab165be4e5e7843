// Package models defines the data structures shared across panmix: per-device
// settings, the pan/volume conversions and the HTTP error envelope.
package models

// Volume and pan ranges, in UI units.
const (
	DefaultVolume = 100.0
	MinVolume     = 0.0
	MaxVolume     = 100.0

	DefaultPan = 0.0
	MinPan     = -100.0
	MaxPan     = 100.0
)

// DeviceSettings is the persisted per-device preference record. It is a value
// type; callers replace it wholesale rather than mutating shared copies.
type DeviceSettings struct {
	Volume         float64 `json:"volume"`           // [0, 100]
	Pan            float64 `json:"pan"`              // [-100, 100], 0 = centered
	IsUserHidden   bool    `json:"is_user_hidden"`   // excluded from the displayable set
	PanBeforeReset float64 `json:"pan_before_reset"` // last non-zero pan, restored by ResetPan
}

// DefaultSettings returns the settings used for a device that has never been seen.
func DefaultSettings() DeviceSettings {
	return DeviceSettings{
		Volume: DefaultVolume,
		Pan:    DefaultPan,
	}
}

// Clamp returns a copy with volume and pan forced into their ranges.
func (s DeviceSettings) Clamp() DeviceSettings {
	s.Volume = ClampVolume(s.Volume)
	s.Pan = ClampPan(s.Pan)
	s.PanBeforeReset = ClampPan(s.PanBeforeReset)
	return s
}

// WithPanReset toggles the pan between centered and the last non-zero value.
// A centered pan with no remembered value is returned unchanged.
func (s DeviceSettings) WithPanReset() DeviceSettings {
	if s.Pan != 0 {
		s.PanBeforeReset = s.Pan
		s.Pan = 0
		return s
	}
	if s.PanBeforeReset != 0 {
		s.Pan = s.PanBeforeReset
	}
	return s
}
