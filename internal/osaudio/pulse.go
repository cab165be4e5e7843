package osaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// PulseAudio D-Bus protocol names (module-dbus-protocol).
const (
	pulseLookupDest  = "org.PulseAudio1"
	pulseLookupPath  = dbus.ObjectPath("/org/pulseaudio/server_lookup1")
	pulseLookupAddr  = "org.PulseAudio.ServerLookup1.Address"
	pulseCoreDest    = "org.PulseAudio.Core1"
	pulseCorePath    = dbus.ObjectPath("/org/pulseaudio/core1")
	pulseCoreIface   = "org.PulseAudio.Core1"
	pulseDeviceIface = "org.PulseAudio.Core1.Device"

	sigNewSink         = pulseCoreIface + ".NewSink"
	sigSinkRemoved     = pulseCoreIface + ".SinkRemoved"
	sigFallbackSink    = pulseCoreIface + ".FallbackSinkUpdated"
	sigVolumeUpdated   = pulseDeviceIface + ".VolumeUpdated"
	sigStateUpdated    = pulseDeviceIface + ".StateUpdated"
	sigPropListUpdated = pulseDeviceIface + ".PropertyListUpdated"
	pulseVolumeNorm    = 65536.0
)

// Pulse talks to a PulseAudio (or pipewire-pulse) server over its
// peer-to-peer D-Bus protocol. Device IDs are sink names, which are stable
// across server restarts; object paths are not.
type Pulse struct {
	conn    *dbus.Conn
	signals chan *dbus.Signal
	done    chan struct{}

	mu      sync.Mutex
	subs    map[int]Handlers
	volume  map[dbus.ObjectPath]map[int]func(float64)
	names   map[dbus.ObjectPath]string
	nextID  int
	closeMu sync.Once
}

// NewPulse locates the server through the session bus and connects to it.
func NewPulse() (*Pulse, error) {
	addr, err := pulseServerAddress()
	if err != nil {
		return nil, err
	}
	conn, err := dbus.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("osaudio: dial pulse %s: %w", addr, err)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("osaudio: pulse auth: %w", err)
	}

	p := &Pulse{
		conn:    conn,
		signals: make(chan *dbus.Signal, 64),
		done:    make(chan struct{}),
		subs:    make(map[int]Handlers),
		volume:  make(map[dbus.ObjectPath]map[int]func(float64)),
		names:   make(map[dbus.ObjectPath]string),
	}
	core := conn.Object(pulseCoreDest, pulseCorePath)
	for _, sig := range []string{sigNewSink, sigSinkRemoved, sigFallbackSink, sigVolumeUpdated, sigStateUpdated, sigPropListUpdated} {
		call := core.Call(pulseCoreIface+".ListenForSignal", 0, sig, []dbus.ObjectPath{})
		if call.Err != nil {
			slog.Warn("osaudio: pulse ListenForSignal failed", "signal", sig, "err", call.Err)
		}
	}
	conn.Signal(p.signals)

	// Prime the path → name map so SinkRemoved can be resolved later.
	if paths, err := p.sinkPaths(); err == nil {
		for _, path := range paths {
			p.nameOf(path)
		}
	}
	go p.signalLoop()
	slog.Info("osaudio: connected to pulseaudio", "addr", addr)
	return p, nil
}

func pulseServerAddress() (string, error) {
	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		return "", fmt.Errorf("osaudio: session bus: %w", err)
	}
	defer bus.Close()

	v, err := bus.Object(pulseLookupDest, pulseLookupPath).GetProperty(pulseLookupAddr)
	if err != nil {
		return "", fmt.Errorf("osaudio: pulse server lookup (is module-dbus-protocol loaded?): %w", err)
	}
	addr, ok := v.Value().(string)
	if !ok || addr == "" {
		return "", errors.New("osaudio: pulse server lookup returned no address")
	}
	return addr, nil
}

func (p *Pulse) sinkPaths() ([]dbus.ObjectPath, error) {
	v, err := p.conn.Object(pulseCoreDest, pulseCorePath).GetProperty(pulseCoreIface + ".Sinks")
	if err != nil {
		return nil, err
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("osaudio: unexpected Sinks type %T", v.Value())
	}
	return paths, nil
}

// nameOf returns the sink name for path, caching it.
func (p *Pulse) nameOf(path dbus.ObjectPath) (string, error) {
	p.mu.Lock()
	name, ok := p.names[path]
	p.mu.Unlock()
	if ok {
		return name, nil
	}
	v, err := p.conn.Object(pulseCoreDest, path).GetProperty(pulseDeviceIface + ".Name")
	if err != nil {
		return "", err
	}
	name, _ = v.Value().(string)
	if name == "" {
		return "", fmt.Errorf("osaudio: sink %s has no name", path)
	}
	p.mu.Lock()
	p.names[path] = name
	p.mu.Unlock()
	return name, nil
}

func (p *Pulse) pathOf(id string) (dbus.ObjectPath, error) {
	p.mu.Lock()
	for path, name := range p.names {
		if name == id {
			p.mu.Unlock()
			return path, nil
		}
	}
	p.mu.Unlock()

	var path dbus.ObjectPath
	call := p.conn.Object(pulseCoreDest, pulseCorePath).Call(pulseCoreIface+".GetSinkByName", 0, id)
	if call.Err != nil {
		return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if err := call.Store(&path); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.names[path] = id
	p.mu.Unlock()
	return path, nil
}

func (p *Pulse) ActiveRenderDevices() ([]Device, error) {
	paths, err := p.sinkPaths()
	if err != nil {
		return nil, fmt.Errorf("osaudio: list sinks: %w", err)
	}
	var out []Device
	for _, path := range paths {
		name, err := p.nameOf(path)
		if err != nil {
			slog.Debug("osaudio: skipping unreadable sink", "path", path, "err", err)
			continue
		}
		out = append(out, &pulseDevice{p: p, id: name, path: path})
	}
	return out, nil
}

func (p *Pulse) DeviceByID(id string) (Device, error) {
	path, err := p.pathOf(id)
	if err != nil {
		return nil, err
	}
	return &pulseDevice{p: p, id: id, path: path}, nil
}

func (p *Pulse) Subscribe(h Handlers) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = h
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Pulse) Close() error {
	var err error
	p.closeMu.Do(func() {
		p.conn.RemoveSignal(p.signals)
		err = p.conn.Close()
		close(p.done)
	})
	return err
}

func (p *Pulse) handlers() []Handlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Handlers, 0, len(p.subs))
	for _, h := range p.subs {
		out = append(out, h)
	}
	return out
}

func (p *Pulse) signalLoop() {
	for {
		select {
		case <-p.done:
			return
		case sig, ok := <-p.signals:
			if !ok {
				return
			}
			p.handleSignal(sig)
		}
	}
}

func (p *Pulse) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case sigNewSink:
		path, ok := firstPath(sig.Body)
		if !ok {
			return
		}
		name, err := p.nameOf(path)
		if err != nil {
			slog.Warn("osaudio: new sink without name", "path", path, "err", err)
			return
		}
		for _, h := range p.handlers() {
			fire(h.DeviceAdded, name)
		}

	case sigSinkRemoved:
		path, ok := firstPath(sig.Body)
		if !ok {
			return
		}
		p.mu.Lock()
		name, known := p.names[path]
		delete(p.names, path)
		delete(p.volume, path)
		p.mu.Unlock()
		if !known {
			return
		}
		for _, h := range p.handlers() {
			fire(h.DeviceRemoved, name)
		}

	case sigFallbackSink:
		path, _ := firstPath(sig.Body)
		name, _ := p.nameOf(path)
		for _, h := range p.handlers() {
			fire(h.DefaultDeviceChanged, name)
		}

	case sigStateUpdated, sigPropListUpdated:
		name, err := p.nameOf(sig.Path)
		if err != nil {
			return
		}
		for _, h := range p.handlers() {
			if sig.Name == sigStateUpdated {
				fire(h.DeviceStateChanged, name)
			} else {
				fire(h.PropertyChanged, name)
			}
		}

	case sigVolumeUpdated:
		// Pulse has no separate balance property; every channel change
		// arrives as VolumeUpdated and doubles as a property change.
		var raw []uint32
		if len(sig.Body) > 0 {
			raw, _ = sig.Body[0].([]uint32)
		}
		master := maxOf(fromPulseVolume(raw))
		p.mu.Lock()
		fns := make([]func(float64), 0, len(p.volume[sig.Path]))
		for _, fn := range p.volume[sig.Path] {
			fns = append(fns, fn)
		}
		p.mu.Unlock()
		for _, fn := range fns {
			go fn(master)
		}
		if name, err := p.nameOf(sig.Path); err == nil {
			for _, h := range p.handlers() {
				fire(h.PropertyChanged, name)
			}
		}
	}
}

func firstPath(body []interface{}) (dbus.ObjectPath, bool) {
	if len(body) == 0 {
		return "", false
	}
	path, ok := body[0].(dbus.ObjectPath)
	return path, ok
}

func fromPulseVolume(raw []uint32) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = clampScalar(float64(v) / pulseVolumeNorm)
	}
	return out
}

func toPulseVolume(scalars []float64) []uint32 {
	out := make([]uint32, len(scalars))
	for i, s := range scalars {
		out[i] = uint32(math.Round(clampScalar(s) * pulseVolumeNorm))
	}
	return out
}

var _ Service = (*Pulse)(nil)

// pulseDevice is a handle onto one sink.
type pulseDevice struct {
	p    *Pulse
	id   string
	path dbus.ObjectPath

	mu     sync.Mutex
	closed bool
	subs   []int
}

func (d *pulseDevice) ID() string { return d.id }

func (d *pulseDevice) obj() (dbus.BusObject, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrDeviceInvalid
	}
	return d.p.conn.Object(pulseCoreDest, d.path), nil
}

func (d *pulseDevice) property(name string) (interface{}, error) {
	obj, err := d.obj()
	if err != nil {
		return nil, err
	}
	v, err := obj.GetProperty(pulseDeviceIface + "." + name)
	if err != nil {
		var dbusErr dbus.Error
		if errors.As(err, &dbusErr) && strings.Contains(dbusErr.Name, "NoSuchEntity") {
			return nil, ErrDeviceInvalid
		}
		return nil, err
	}
	return v.Value(), nil
}

func (d *pulseDevice) FriendlyName() (string, error) {
	v, err := d.property("PropertyList")
	if err != nil {
		return "", err
	}
	if props, ok := v.(map[string][]byte); ok {
		if desc := strings.TrimRight(string(props["device.description"]), "\x00"); desc != "" {
			return desc, nil
		}
	}
	return d.id, nil
}

func (d *pulseDevice) channels() ([]float64, error) {
	v, err := d.property("Volume")
	if err != nil {
		return nil, err
	}
	raw, ok := v.([]uint32)
	if !ok || len(raw) == 0 {
		return nil, ErrNoVolumeControl
	}
	return fromPulseVolume(raw), nil
}

func (d *pulseDevice) setChannels(ch []float64) error {
	obj, err := d.obj()
	if err != nil {
		return err
	}
	call := obj.Call("org.freedesktop.DBus.Properties.Set", 0,
		pulseDeviceIface, "Volume", dbus.MakeVariant(toPulseVolume(ch)))
	return call.Err
}

func (d *pulseDevice) ChannelCount() (int, error) {
	ch, err := d.channels()
	if err != nil {
		return 0, err
	}
	return len(ch), nil
}

func (d *pulseDevice) MasterScalar() (float64, error) {
	ch, err := d.channels()
	if err != nil {
		return 0, err
	}
	return maxOf(ch), nil
}

func (d *pulseDevice) ChannelScalar(i int) (float64, error) {
	ch, err := d.channels()
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(ch) {
		return 0, fmt.Errorf("osaudio: channel %d out of range", i)
	}
	return ch[i], nil
}

func (d *pulseDevice) SetChannelScalar(i int, v float64) error {
	ch, err := d.channels()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(ch) {
		return fmt.Errorf("osaudio: channel %d out of range", i)
	}
	ch[i] = clampScalar(v)
	return d.setChannels(ch)
}

func (d *pulseDevice) SetMasterScalar(v float64) error {
	ch, err := d.channels()
	if err != nil {
		return err
	}
	return d.setChannels(rescale(ch, clampScalar(v)))
}

func (d *pulseDevice) OnVolumeNotification(fn func(master float64)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return func() {}
	}
	p := d.p
	p.mu.Lock()
	key := p.nextID
	p.nextID++
	if p.volume[d.path] == nil {
		p.volume[d.path] = make(map[int]func(float64))
	}
	p.volume[d.path][key] = fn
	p.mu.Unlock()
	d.subs = append(d.subs, key)

	var once sync.Once
	return func() { once.Do(func() { d.drop(key) }) }
}

func (d *pulseDevice) drop(key int) {
	p := d.p
	p.mu.Lock()
	delete(p.volume[d.path], key)
	if len(p.volume[d.path]) == 0 {
		delete(p.volume, d.path)
	}
	p.mu.Unlock()
}

func (d *pulseDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()
	for _, key := range subs {
		d.drop(key)
	}
	return nil
}
