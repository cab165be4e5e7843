package models

// DeviceUpdate is the PATCH body for changing a device's volume and/or pan.
type DeviceUpdate struct {
	Volume *float64 `json:"volume,omitempty"`
	Pan    *float64 `json:"pan,omitempty"`
}

// DeviceView is a displayable device as presented to UI clients.
type DeviceView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	CanPan   bool           `json:"can_pan"`
	Settings DeviceSettings `json:"settings"`
}

// HiddenDevice pairs a hidden device ID with its friendly name for the
// "restore device" menu.
type HiddenDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
