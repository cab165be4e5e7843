package devices

import (
	"log/slog"

	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
)

// Filter decides which active endpoints are displayable.
type Filter struct {
	prefs Preferences
	names *NameCache
}

func NewFilter(prefs Preferences, names *NameCache) *Filter {
	return &Filter{prefs: prefs, names: names}
}

// Displayable returns the devices not marked hidden. Every excluded handle
// is closed before returning.
func (f *Filter) Displayable(all []osaudio.Device) []osaudio.Device {
	out := make([]osaudio.Device, 0, len(all))
	for _, dev := range all {
		if f.Allows(dev) {
			out = append(out, dev)
			continue
		}
		dev.Close()
	}
	return out
}

// Allows reports whether dev is displayable. Looking up the settings
// creates defaults for a device seen for the first time.
func (f *Filter) Allows(dev osaudio.Device) bool {
	st, err := f.prefs.Settings(dev.ID())
	if err != nil {
		slog.Warn("devices: rejecting device without usable id", "err", err)
		return false
	}
	return !st.IsUserHidden
}

// HiddenDeviceInfos lists hidden devices with their names, sorted by ID.
func (f *Filter) HiddenDeviceInfos() []models.HiddenDevice {
	ids := f.prefs.HiddenDeviceIDs()
	out := make([]models.HiddenDevice, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.HiddenDevice{ID: id, Name: f.names.NameByID(id)})
	}
	return out
}
