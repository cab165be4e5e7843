package events

// Event is a message published on the Bus.
type Event interface {
	// Kind names the event type on the wire ("volume_changed", ...).
	Kind() string
}

// VolumeChanged is published when the OS reports a new master volume for a
// device that was not an echo of a local edit.
type VolumeChanged struct {
	DeviceID string  `json:"device_id"`
	Volume   float64 `json:"volume"` // rounded percent
}

// PanChanged is published when the OS reports a new channel balance.
type PanChanged struct {
	DeviceID string  `json:"device_id"`
	Pan      float64 `json:"pan"` // rounded, [-100, 100]
}

// DeviceAdded is published after a device joins the displayable collection.
type DeviceAdded struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// DeviceRemoved is published after a device leaves the displayable collection.
type DeviceRemoved struct {
	DeviceID string `json:"device_id"`
}

func (VolumeChanged) Kind() string { return "volume_changed" }
func (PanChanged) Kind() string    { return "pan_changed" }
func (DeviceAdded) Kind() string   { return "device_added" }
func (DeviceRemoved) Kind() string { return "device_removed" }
