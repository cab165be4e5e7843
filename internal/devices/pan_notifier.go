package devices

import (
	"errors"
	"log/slog"
	"math"
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

// PanNotifier watches property changes on every endpoint, debounces them
// per device and publishes events.PanChanged with the re-read balance.
type PanNotifier struct {
	svc     osaudio.Service
	tracker *prefs.Tracker
	disp    *dispatch.Dispatcher
	bus     *events.Bus
	opts    Options

	group  *debounce.Group[string, struct{}]
	unsub  func()
	closed atomic.Bool
	once   sync.Once
}

// NewPanNotifier subscribes to svc's property changes.
func NewPanNotifier(svc osaudio.Service, tracker *prefs.Tracker, disp *dispatch.Dispatcher, bus *events.Bus, opts Options) *PanNotifier {
	opts = opts.withDefaults()
	p := &PanNotifier{
		svc:     svc,
		tracker: tracker,
		disp:    disp,
		bus:     bus,
		opts:    opts,
	}
	p.group = debounce.NewGroup(opts.Clock, opts.PanDebounce, func(id string, _ struct{}) {
		p.disp.Post(func() { p.process(id) })
	})
	p.unsub = svc.Subscribe(osaudio.Handlers{PropertyChanged: p.onPropertyChanged})
	return p
}

func (p *PanNotifier) onPropertyChanged(id string) {
	if id == "" {
		return
	}
	// Writes made by the endpoint controller echo back as property changes.
	if p.tracker.WithinGrace(id, p.opts.GracePeriod) {
		p.opts.Metrics.Notification("pan", metrics.OutcomeSuppressed)
		return
	}
	p.group.Push(id, struct{}{})
}

// process runs on the dispatcher.
func (p *PanNotifier) process(id string) {
	if p.closed.Load() {
		return
	}
	dev, err := p.svc.DeviceByID(id)
	if err != nil {
		if errors.Is(err, osaudio.ErrDeviceNotFound) {
			p.opts.Metrics.Notification("pan", metrics.OutcomeDropped)
			return
		}
		slog.Error("devices: failed to open device for pan read", "id", id, "err", err)
		p.opts.Metrics.Notification("pan", metrics.OutcomeError)
		return
	}
	defer dev.Close()

	channels, err := dev.ChannelCount()
	if err != nil || channels < 2 {
		if err != nil && !errors.Is(err, osaudio.ErrNoVolumeControl) {
			slog.Error("devices: failed to read channel count", "id", id, "err", err)
			p.opts.Metrics.Notification("pan", metrics.OutcomeError)
			return
		}
		p.opts.Metrics.Notification("pan", metrics.OutcomeDropped)
		return
	}
	left, err := dev.ChannelScalar(0)
	if err == nil {
		var right float64
		right, err = dev.ChannelScalar(1)
		if err == nil {
			pan := math.Round(models.ScalarsToPan(left, right))
			slog.Debug("devices: OS pan changed", "id", id, "pan", pan)
			p.opts.Metrics.Notification("pan", metrics.OutcomeDelivered)
			p.bus.Publish(events.PanChanged{DeviceID: id, Pan: pan})
			return
		}
	}
	slog.Error("devices: failed to read channel scalars", "id", id, "err", err)
	p.opts.Metrics.Notification("pan", metrics.OutcomeError)
}

// Forget drops any pending debounce state for id.
func (p *PanNotifier) Forget(id string) {
	p.group.Remove(id)
}

// Close unsubscribes from the OS and then stops all pending debounces. It
// is idempotent.
func (p *PanNotifier) Close() {
	p.once.Do(func() {
		p.closed.Store(true)
		p.unsub()
		p.group.Stop()
	})
}
