package devices

import (
	"log/slog"
	"sync"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/micro-nova/panmix/internal/dispatch"
	"github.com/micro-nova/panmix/internal/events"
	"github.com/micro-nova/panmix/internal/osaudio"
	"github.com/micro-nova/panmix/internal/prefs"
)

// Monitor owns the displayable-device collection. OS callbacks are posted
// onto the dispatcher; the collection is only written from there.
type Monitor struct {
	svc     osaudio.Service
	disp    *dispatch.Dispatcher
	filter  *Filter
	names   *NameCache
	tracker *prefs.Tracker
	bus     *events.Bus
	opts    Options
	pan     *PanNotifier

	mu      sync.RWMutex // guards devices for readers off the dispatcher
	devices *orderedmap.OrderedMap[string, *Device]

	unsub  func()
	closed atomic.Bool
	once   sync.Once
}

// NewMonitor subscribes to svc's device events and schedules an initial
// refresh.
func NewMonitor(svc osaudio.Service, disp *dispatch.Dispatcher, filter *Filter, names *NameCache,
	tracker *prefs.Tracker, bus *events.Bus, opts Options) *Monitor {
	opts = opts.withDefaults()
	m := &Monitor{
		svc:     svc,
		disp:    disp,
		filter:  filter,
		names:   names,
		tracker: tracker,
		bus:     bus,
		opts:    opts,
		devices: orderedmap.New[string, *Device](),
	}
	m.pan = NewPanNotifier(svc, tracker, disp, bus, opts)
	m.unsub = svc.Subscribe(osaudio.Handlers{
		DeviceAdded:          func(id string) { m.post(func() { m.addByID(id) }) },
		DeviceRemoved:        func(id string) { m.post(func() { m.remove(id) }) },
		DeviceStateChanged:   func(string) { m.post(m.refresh) },
		DefaultDeviceChanged: func(string) { m.post(m.refresh) },
	})
	m.post(m.refresh)
	return m
}

// Refresh schedules a full resynchronisation with the OS.
func (m *Monitor) Refresh() {
	m.post(m.refresh)
}

// Devices returns the displayable devices in insertion order.
func (m *Monitor) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Device, 0, m.devices.Len())
	for pair := m.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Device returns the displayed device with id.
func (m *Monitor) Device(id string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices.Get(id)
}

// FriendlyNameByID returns the name of a displayed device. Devices not in
// the collection report false.
func (m *Monitor) FriendlyNameByID(id string) (string, bool) {
	dev, ok := m.Device(id)
	if !ok {
		return "", false
	}
	return dev.Name(), true
}

// Close unsubscribes from the OS, clears every device on the dispatcher and
// then closes the pan notifier. It is idempotent.
func (m *Monitor) Close() {
	m.once.Do(func() {
		m.closed.Store(true)
		m.unsub()
		if err := m.disp.Invoke(m.clearAll); err != nil {
			// Dispatcher already gone; nothing else can be writing.
			m.clearAll()
		}
		m.pan.Close()
	})
}

func (m *Monitor) post(fn func()) {
	if m.closed.Load() {
		return
	}
	m.disp.Post(func() {
		if m.closed.Load() {
			return
		}
		fn()
	})
}

// --- dispatcher-only below ---

func (m *Monitor) refresh() {
	all, err := m.svc.ActiveRenderDevices()
	if err != nil {
		slog.Error("devices: failed to enumerate render devices", "err", err)
		return
	}
	m.opts.Metrics.Refreshed()

	displayable := m.filter.Displayable(all)
	keep := make(map[string]struct{}, len(displayable))
	for _, dev := range displayable {
		keep[dev.ID()] = struct{}{}
	}

	var stale []string
	m.mu.RLock()
	for pair := m.devices.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := keep[pair.Key]; !ok {
			stale = append(stale, pair.Key)
		}
	}
	m.mu.RUnlock()
	for _, id := range stale {
		m.remove(id)
	}

	for _, dev := range displayable {
		if _, present := m.Device(dev.ID()); present {
			// Keep the existing wrapper and its subscriptions.
			dev.Close()
			continue
		}
		m.add(dev)
	}
}

func (m *Monitor) addByID(id string) {
	if id == "" {
		return
	}
	if _, present := m.Device(id); present {
		return
	}
	dev, err := m.svc.DeviceByID(id)
	if err != nil {
		slog.Warn("devices: added device could not be opened", "id", id, "err", err)
		return
	}
	if !m.filter.Allows(dev) {
		dev.Close()
		return
	}
	m.add(dev)
}

func (m *Monitor) add(handle osaudio.Device) {
	name := m.names.Name(handle)
	notifier := NewVolumeNotifier(handle.ID(), m.tracker, m.disp, m.bus, m.opts)
	dev := newDevice(handle, name, notifier)

	m.mu.Lock()
	m.devices.Set(dev.ID(), dev)
	n := m.devices.Len()
	m.mu.Unlock()

	slog.Info("devices: added device", "id", dev.ID(), "name", name)
	m.opts.Metrics.SetDisplayed(n)
	m.bus.Publish(events.DeviceAdded{DeviceID: dev.ID(), Name: name})
}

func (m *Monitor) remove(id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	dev, ok := m.devices.Delete(id)
	n := m.devices.Len()
	m.mu.Unlock()
	if !ok {
		return
	}
	m.names.Invalidate(id)
	m.pan.Forget(id)
	dev.Close()

	slog.Info("devices: removed device", "id", id, "name", dev.Name())
	m.opts.Metrics.SetDisplayed(n)
	m.bus.Publish(events.DeviceRemoved{DeviceID: id})
}

func (m *Monitor) clearAll() {
	m.mu.RLock()
	ids := make([]string, 0, m.devices.Len())
	for pair := m.devices.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.remove(id)
	}
}
