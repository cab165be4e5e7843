package osaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

type simEndpoint struct {
	id        string
	name      string
	channels  []float64
	active    bool
	noVolume  bool
	failName  bool
	volumeFns map[int]func(float64)
}

// Sim is a thread-safe in-memory audio system for tests and --mock runs.
// Notifications are delivered on fresh goroutines, as an OS would deliver
// them on its own threads.
type Sim struct {
	mu        sync.Mutex
	endpoints map[string]*simEndpoint
	order     []string
	subs      map[int]Handlers
	nextID    int
	failOpen  bool
	failRead  bool
	failWrite bool
	writes    int
	open      atomic.Int64
	closed    bool
}

// NewSim returns an empty simulated audio system.
func NewSim() *Sim {
	return &Sim{
		endpoints: make(map[string]*simEndpoint),
		subs:      make(map[int]Handlers),
	}
}

// NewDemoSim returns a Sim with a few plausible endpoints, used by --mock.
func NewDemoSim() *Sim {
	s := NewSim()
	s.AddDevice("{0.0.0.00000000}.{speakers}", "Speakers (Realtek High Definition Audio)", 2)
	s.AddDevice("{0.0.0.00000000}.{headphones}", "Headphones (USB Audio)", 2)
	s.AddDevice("{0.0.0.00000000}.{hdmi}", "Monitor (HDMI Audio)", 1)
	return s
}

// --- control surface used by tests ---

// AddDevice plugs in an active endpoint at full volume and fires
// DeviceAdded.
func (s *Sim) AddDevice(id, name string, channels int) {
	s.mu.Lock()
	ep := &simEndpoint{
		id:        id,
		name:      name,
		channels:  make([]float64, channels),
		active:    true,
		volumeFns: make(map[int]func(float64)),
	}
	for i := range ep.channels {
		ep.channels[i] = 1
	}
	if _, exists := s.endpoints[id]; !exists {
		s.order = append(s.order, id)
	}
	s.endpoints[id] = ep
	subs := s.handlersLocked()
	s.mu.Unlock()

	for _, h := range subs {
		fire(h.DeviceAdded, id)
	}
}

// RemoveDevice unplugs an endpoint and fires DeviceRemoved. Open handles to
// it become invalid.
func (s *Sim) RemoveDevice(id string) {
	s.mu.Lock()
	if _, ok := s.endpoints[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.endpoints, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	subs := s.handlersLocked()
	s.mu.Unlock()

	for _, h := range subs {
		fire(h.DeviceRemoved, id)
	}
}

// SetActive changes whether an endpoint is enumerated and fires
// DeviceStateChanged.
func (s *Sim) SetActive(id string, active bool) {
	s.mu.Lock()
	ep, ok := s.endpoints[id]
	if ok {
		ep.active = active
	}
	subs := s.handlersLocked()
	s.mu.Unlock()

	if ok {
		for _, h := range subs {
			fire(h.DeviceStateChanged, id)
		}
	}
}

// SetDefault fires DefaultDeviceChanged for id.
func (s *Sim) SetDefault(id string) {
	s.mu.Lock()
	subs := s.handlersLocked()
	s.mu.Unlock()
	for _, h := range subs {
		fire(h.DefaultDeviceChanged, id)
	}
}

// SetOSVolume changes the master volume as if another application did it.
func (s *Sim) SetOSVolume(id string, master float64) {
	s.mu.Lock()
	ep, ok := s.endpoints[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	ep.channels = rescale(ep.channels, clampScalar(master))
	fns, vol := volumeFnsLocked(ep)
	s.mu.Unlock()

	for _, fn := range fns {
		go fn(vol)
	}
}

// SetOSChannels changes the channel balance as if another application did
// it, firing PropertyChanged and a volume notification.
func (s *Sim) SetOSChannels(id string, levels ...float64) {
	s.mu.Lock()
	ep, ok := s.endpoints[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	for i := range ep.channels {
		if i < len(levels) {
			ep.channels[i] = clampScalar(levels[i])
		}
	}
	fns, vol := volumeFnsLocked(ep)
	subs := s.handlersLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		go fn(vol)
	}
	for _, h := range subs {
		fire(h.PropertyChanged, id)
	}
}

// FireProperty emits a bare PropertyChanged notification for id.
func (s *Sim) FireProperty(id string) {
	s.mu.Lock()
	subs := s.handlersLocked()
	s.mu.Unlock()
	for _, h := range subs {
		fire(h.PropertyChanged, id)
	}
}

// SetNoVolume makes an endpoint report ErrNoVolumeControl.
func (s *Sim) SetNoVolume(id string, none bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.endpoints[id]; ok {
		ep.noVolume = none
	}
}

// SetFailName makes FriendlyName fail for id.
func (s *Sim) SetFailName(id string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.endpoints[id]; ok {
		ep.failName = fail
	}
}

// SetFailOpen configures DeviceByID and ActiveRenderDevices to fail.
func (s *Sim) SetFailOpen(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOpen = fail
}

// SetFailRead configures all handle reads to fail.
func (s *Sim) SetFailRead(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRead = fail
}

// SetFailWrite configures all handle writes to fail.
func (s *Sim) SetFailWrite(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = fail
}

// Channels returns a copy of an endpoint's channel levels.
func (s *Sim) Channels(id string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil
	}
	return append([]float64(nil), ep.channels...)
}

// Writes returns the number of successful handle writes.
func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// OpenHandles returns the number of handles not yet closed.
func (s *Sim) OpenHandles() int {
	return int(s.open.Load())
}

// Subscribers returns the number of registered Handlers.
func (s *Sim) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// VolumeSubscribers returns the number of volume callbacks registered on id.
func (s *Sim) VolumeSubscribers(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.endpoints[id]; ok {
		return len(ep.volumeFns)
	}
	return 0
}

// --- Service ---

func (s *Sim) ActiveRenderDevices() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpen {
		return nil, errors.New("osaudio: sim enumeration failure configured")
	}
	var out []Device
	for _, id := range s.order {
		if s.endpoints[id].active {
			out = append(out, s.openLocked(id))
		}
	}
	return out, nil
}

func (s *Sim) DeviceByID(id string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpen {
		return nil, errors.New("osaudio: sim open failure configured")
	}
	if _, ok := s.endpoints[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return s.openLocked(id), nil
}

func (s *Sim) Subscribe(h Handlers) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = h
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[int]Handlers)
	return nil
}

func (s *Sim) openLocked(id string) *simDevice {
	s.open.Add(1)
	return &simDevice{sim: s, id: id, subs: make(map[int]struct{})}
}

func (s *Sim) handlersLocked() []Handlers {
	out := make([]Handlers, 0, len(s.subs))
	for _, h := range s.subs {
		out = append(out, h)
	}
	return out
}

func volumeFnsLocked(ep *simEndpoint) ([]func(float64), float64) {
	fns := make([]func(float64), 0, len(ep.volumeFns))
	for _, fn := range ep.volumeFns {
		fns = append(fns, fn)
	}
	return fns, maxOf(ep.channels)
}

var _ Service = (*Sim)(nil)

// simDevice is a handle onto a Sim endpoint.
type simDevice struct {
	sim    *Sim
	id     string
	closed atomic.Bool
	subs   map[int]struct{} // guarded by sim.mu
}

func (d *simDevice) ID() string { return d.id }

// endpointLocked resolves the endpoint behind an open handle.
func (d *simDevice) endpointLocked() (*simEndpoint, error) {
	if d.closed.Load() {
		return nil, ErrDeviceInvalid
	}
	ep, ok := d.sim.endpoints[d.id]
	if !ok {
		return nil, ErrDeviceInvalid
	}
	return ep, nil
}

func (d *simDevice) read() (*simEndpoint, error) {
	ep, err := d.endpointLocked()
	if err != nil {
		return nil, err
	}
	if d.sim.failRead {
		return nil, errors.New("osaudio: sim read failure configured")
	}
	return ep, nil
}

func (d *simDevice) FriendlyName() (string, error) {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	ep, err := d.read()
	if err != nil {
		return "", err
	}
	if ep.failName {
		return "", errors.New("osaudio: sim name failure configured")
	}
	return ep.name, nil
}

func (d *simDevice) ChannelCount() (int, error) {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	ep, err := d.read()
	if err != nil {
		return 0, err
	}
	if ep.noVolume {
		return 0, ErrNoVolumeControl
	}
	return len(ep.channels), nil
}

func (d *simDevice) MasterScalar() (float64, error) {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	ep, err := d.read()
	if err != nil {
		return 0, err
	}
	if ep.noVolume {
		return 0, ErrNoVolumeControl
	}
	return maxOf(ep.channels), nil
}

func (d *simDevice) ChannelScalar(ch int) (float64, error) {
	d.sim.mu.Lock()
	defer d.sim.mu.Unlock()
	ep, err := d.read()
	if err != nil {
		return 0, err
	}
	if ep.noVolume {
		return 0, ErrNoVolumeControl
	}
	if ch < 0 || ch >= len(ep.channels) {
		return 0, fmt.Errorf("osaudio: channel %d out of range", ch)
	}
	return ep.channels[ch], nil
}

func (d *simDevice) SetChannelScalar(ch int, v float64) error {
	return d.write(func(ep *simEndpoint) error {
		if ch < 0 || ch >= len(ep.channels) {
			return fmt.Errorf("osaudio: channel %d out of range", ch)
		}
		ep.channels[ch] = clampScalar(v)
		return nil
	}, true)
}

func (d *simDevice) SetMasterScalar(v float64) error {
	return d.write(func(ep *simEndpoint) error {
		ep.channels = rescale(ep.channels, clampScalar(v))
		return nil
	}, false)
}

// write applies fn and then emits the notifications the OS would emit for
// the change, echoes included.
func (d *simDevice) write(fn func(*simEndpoint) error, property bool) error {
	s := d.sim
	s.mu.Lock()
	ep, err := d.endpointLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.failWrite {
		s.mu.Unlock()
		return errors.New("osaudio: sim write failure configured")
	}
	if ep.noVolume {
		s.mu.Unlock()
		return ErrNoVolumeControl
	}
	if err := fn(ep); err != nil {
		s.mu.Unlock()
		return err
	}
	s.writes++
	fns, vol := volumeFnsLocked(ep)
	var subs []Handlers
	if property {
		subs = s.handlersLocked()
	}
	s.mu.Unlock()

	for _, fn := range fns {
		go fn(vol)
	}
	for _, h := range subs {
		fire(h.PropertyChanged, d.id)
	}
	return nil
}

func (d *simDevice) OnVolumeNotification(fn func(master float64)) func() {
	s := d.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, err := d.endpointLocked()
	if err != nil {
		return func() {}
	}
	key := s.nextID
	s.nextID++
	ep.volumeFns[key] = fn
	d.subs[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			d.dropLocked(key)
		})
	}
}

func (d *simDevice) dropLocked(key int) {
	delete(d.subs, key)
	if ep, ok := d.sim.endpoints[d.id]; ok {
		delete(ep.volumeFns, key)
	}
}

func (d *simDevice) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.sim.mu.Lock()
	for key := range d.subs {
		d.dropLocked(key)
	}
	d.sim.mu.Unlock()
	d.sim.open.Add(-1)
	return nil
}
