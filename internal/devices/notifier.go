package devices

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/micro-nova/panmix/internal/debounce"
	"github.com/micro-nova/panmix/internal/dispatch"
	"github.com/micro-nova/panmix/internal/events"
	"github.com/micro-nova/panmix/internal/metrics"
	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
	"github.com/micro-nova/panmix/internal/prefs"
)

// VolumeNotifier turns one device's raw OS volume callbacks into debounced
// events.VolumeChanged messages, dropping echoes of recent user edits.
// It is owned by exactly one Device.
type VolumeNotifier struct {
	id      string
	tracker *prefs.Tracker
	disp    *dispatch.Dispatcher
	bus     *events.Bus
	opts    Options

	deb    *debounce.Debouncer[float64]
	unsub  func()
	closed atomic.Bool
	once   sync.Once
}

// NewVolumeNotifier creates a notifier for id. Attach connects it to a
// handle.
func NewVolumeNotifier(id string, tracker *prefs.Tracker, disp *dispatch.Dispatcher, bus *events.Bus, opts Options) *VolumeNotifier {
	opts = opts.withDefaults()
	n := &VolumeNotifier{
		id:      id,
		tracker: tracker,
		disp:    disp,
		bus:     bus,
		opts:    opts,
	}
	n.deb = debounce.New(opts.Clock, opts.VolumeDebounce, n.deliver)
	return n
}

// Attach subscribes to dev's volume notifications. Close unsubscribes.
func (n *VolumeNotifier) Attach(dev osaudio.Device) {
	n.unsub = dev.OnVolumeNotification(n.HandleOSVolume)
}

// HandleOSVolume receives a master scalar from the OS. Safe from any
// goroutine.
func (n *VolumeNotifier) HandleOSVolume(scalar float64) {
	if n.closed.Load() {
		return
	}
	if n.tracker.WithinGrace(n.id, n.opts.GracePeriod) {
		n.opts.Metrics.Notification("volume", metrics.OutcomeSuppressed)
		return
	}
	n.deb.Push(scalar)
}

func (n *VolumeNotifier) deliver(scalar float64) {
	n.disp.Post(func() {
		if n.closed.Load() {
			return
		}
		vol := models.ScalarToVolume(scalar)
		slog.Debug("devices: OS volume changed", "id", n.id, "volume", vol)
		n.opts.Metrics.Notification("volume", metrics.OutcomeDelivered)
		n.bus.Publish(events.VolumeChanged{DeviceID: n.id, Volume: vol})
	})
}

// Close unsubscribes from the OS and then stops the debouncer. It is
// idempotent.
func (n *VolumeNotifier) Close() {
	n.once.Do(func() {
		n.closed.Store(true)
		if n.unsub != nil {
			n.unsub()
		}
		n.deb.Stop()
	})
}
