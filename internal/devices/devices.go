// Package devices tracks the audio endpoints that should be shown to the
// user and keeps them in step with OS notifications. All mutation of the
// displayable collection happens on a single dispatch.Dispatcher.
package devices

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/micro-nova/panmix/internal/metrics"
	"github.com/micro-nova/panmix/internal/models"
)

// Default notification timings.
const (
	DefaultVolumeDebounce = 300 * time.Millisecond
	DefaultGracePeriod    = 200 * time.Millisecond
	DefaultPanDebounce    = 400 * time.Millisecond
)

// Preferences is the slice of prefs.Service the device layer reads.
type Preferences interface {
	Settings(id string) (models.DeviceSettings, error)
	HiddenDeviceIDs() []string
}

// Options tunes notification handling. Zero values select defaults.
type Options struct {
	Clock          clockwork.Clock
	VolumeDebounce time.Duration
	GracePeriod    time.Duration
	PanDebounce    time.Duration
	Metrics        *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.VolumeDebounce <= 0 {
		o.VolumeDebounce = DefaultVolumeDebounce
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.PanDebounce <= 0 {
		o.PanDebounce = DefaultPanDebounce
	}
	return o
}
