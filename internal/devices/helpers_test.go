package devices_test

import (
	"math"
	"testing"
	"time"

	"github.com/micro-nova/panmix/internal/config"
	"github.com/micro-nova/panmix/internal/devices"
	"github.com/micro-nova/panmix/internal/dispatch"
	"github.com/micro-nova/panmix/internal/events"
	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
	"github.com/micro-nova/panmix/internal/prefs"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

// fixture wires a monitor against a simulated audio system with short,
// real-time windows.
type fixture struct {
	sim     *osaudio.Sim
	disp    *dispatch.Dispatcher
	bus     *events.Bus
	prefs   *prefs.Service
	tracker *prefs.Tracker
	names   *devices.NameCache
	filter  *devices.Filter
	mon     *devices.Monitor
	events  <-chan events.Event
}

var fastOpts = devices.Options{
	VolumeDebounce: 50 * time.Millisecond,
	GracePeriod:    200 * time.Millisecond,
	PanDebounce:    50 * time.Millisecond,
}

func newFixture(t *testing.T, initial map[string]models.DeviceSettings, setup func(*osaudio.Sim)) *fixture {
	t.Helper()
	f := &fixture{
		sim:     osaudio.NewSim(),
		disp:    dispatch.New(),
		bus:     events.NewBus(),
		tracker: prefs.NewTracker(nil),
	}
	if setup != nil {
		setup(f.sim)
	}
	f.prefs = prefs.NewService(config.NewMemStore(initial), devices.NewStateReader(f.sim), prefs.Options{})
	f.names = devices.NewNameCache(f.sim)
	f.filter = devices.NewFilter(f.prefs, f.names)
	f.events = f.bus.Subscribe(t.Name())
	f.mon = devices.NewMonitor(f.sim, f.disp, f.filter, f.names, f.tracker, f.bus, fastOpts)
	f.barrier(t)

	t.Cleanup(func() {
		f.mon.Close()
		f.disp.Stop()
		f.prefs.Close()
	})
	return f
}

// barrier waits until everything already posted to the dispatcher has run.
func (f *fixture) barrier(t *testing.T) {
	t.Helper()
	if err := f.disp.Invoke(func() {}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}

func (f *fixture) ids() []string {
	var out []string
	for _, d := range f.mon.Devices() {
		out = append(out, d.ID())
	}
	return out
}

// waitFor reads events until one satisfies match.
func waitFor[T events.Event](t *testing.T, ch <-chan events.Event, match func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if v, ok := ev.(T); ok && match(v) {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// expectNo fails if an event of type T for id arrives within d.
func expectNo[T events.Event](t *testing.T, ch <-chan events.Event, d time.Duration, match func(T) bool) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case ev := <-ch:
			if v, ok := ev.(T); ok && match(v) {
				t.Fatalf("unexpected %T: %+v", v, v)
			}
		case <-deadline:
			return
		}
	}
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
