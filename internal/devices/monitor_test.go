package devices_test

import (
	"testing"
	"time"

	"github.com/micro-nova/panmix/internal/events"
	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
)

func threeDevices(sim *osaudio.Sim) {
	sim.AddDevice("a", "Speakers", 2)
	sim.AddDevice("b", "Headphones", 2)
	sim.AddDevice("m", "HDMI", 1)
}

func TestMonitor_InitialRefresh(t *testing.T) {
	f := newFixture(t, nil, threeDevices)

	if got := f.ids(); !equalIDs(got, []string{"a", "b", "m"}) {
		t.Errorf("Devices = %v, want [a b m]", got)
	}
	if n := f.sim.OpenHandles(); n != 3 {
		t.Errorf("OpenHandles = %d, want 3", n)
	}
	dev, ok := f.mon.Device("m")
	if !ok {
		t.Fatal("Device(m) not found")
	}
	if dev.CanPan() {
		t.Error("mono device reports CanPan")
	}
	if name, ok := f.mon.FriendlyNameByID("b"); !ok || name != "Headphones" {
		t.Errorf("FriendlyNameByID(b) = %q, %v", name, ok)
	}
}

func TestMonitor_HiddenDeviceExcluded(t *testing.T) {
	f := newFixture(t, map[string]models.DeviceSettings{
		"b": {Volume: 100, IsUserHidden: true},
	}, threeDevices)

	if got := f.ids(); !equalIDs(got, []string{"a", "m"}) {
		t.Errorf("Devices = %v, want [a m]", got)
	}
	if n := f.sim.OpenHandles(); n != 2 {
		t.Errorf("OpenHandles = %d, want 2", n)
	}

	// A targeted add of a hidden device is rejected too.
	f.sim.RemoveDevice("b")
	f.sim.AddDevice("b", "Headphones", 2)
	expectNo(t, f.events, 200*time.Millisecond, func(e events.DeviceAdded) bool { return e.DeviceID == "b" })
	if _, ok := f.mon.Device("b"); ok {
		t.Error("hidden device added by targeted add")
	}
	if n := f.sim.OpenHandles(); n != 2 {
		t.Errorf("OpenHandles = %d, want 2 after rejected add", n)
	}
}

func TestMonitor_RefreshKeepsExistingWrappers(t *testing.T) {
	f := newFixture(t, nil, threeDevices)
	before, _ := f.mon.Device("a")

	f.mon.Refresh()
	f.barrier(t)

	after, _ := f.mon.Device("a")
	if before != after {
		t.Error("refresh replaced an existing wrapper")
	}
	if n := f.sim.OpenHandles(); n != 3 {
		t.Errorf("OpenHandles = %d, want 3 (duplicates must be closed)", n)
	}
	if n := f.sim.VolumeSubscribers("a"); n != 1 {
		t.Errorf("VolumeSubscribers(a) = %d, want 1", n)
	}
}

func TestMonitor_TargetedAddAndRemove(t *testing.T) {
	f := newFixture(t, nil, threeDevices)

	f.sim.AddDevice("usb", "USB DAC", 2)
	added := waitFor(t, f.events, func(e events.DeviceAdded) bool { return e.DeviceID == "usb" })
	if added.Name != "USB DAC" {
		t.Errorf("DeviceAdded name = %q", added.Name)
	}
	if got := f.ids(); !equalIDs(got, []string{"a", "b", "m", "usb"}) {
		t.Errorf("Devices = %v", got)
	}

	f.sim.RemoveDevice("a")
	waitFor(t, f.events, func(e events.DeviceRemoved) bool { return e.DeviceID == "a" })
	if _, ok := f.mon.FriendlyNameByID("a"); ok {
		t.Error("FriendlyNameByID still resolves a removed device")
	}
	if _, ok := f.names.Cached("a"); ok {
		t.Error("name cache not invalidated on removal")
	}
	if n := f.sim.OpenHandles(); n != 3 {
		t.Errorf("OpenHandles = %d, want 3", n)
	}

	// Re-adding restores it.
	f.sim.AddDevice("a", "Speakers", 2)
	waitFor(t, f.events, func(e events.DeviceAdded) bool { return e.DeviceID == "a" })
	if name, ok := f.mon.FriendlyNameByID("a"); !ok || name != "Speakers" {
		t.Errorf("FriendlyNameByID(a) after re-add = %q, %v", name, ok)
	}
}

func TestMonitor_StateChangeRefreshes(t *testing.T) {
	f := newFixture(t, nil, threeDevices)

	f.sim.SetActive("b", false)
	waitFor(t, f.events, func(e events.DeviceRemoved) bool { return e.DeviceID == "b" })

	f.sim.SetActive("b", true)
	waitFor(t, f.events, func(e events.DeviceAdded) bool { return e.DeviceID == "b" })
	if got := f.ids(); !equalIDs(got, []string{"a", "m", "b"}) {
		t.Errorf("Devices = %v, want [a m b]", got)
	}
}

func TestMonitor_EnumerationFailureKeepsCollection(t *testing.T) {
	f := newFixture(t, nil, threeDevices)

	f.sim.SetFailOpen(true)
	f.mon.Refresh()
	f.barrier(t)
	if got := f.ids(); !equalIDs(got, []string{"a", "b", "m"}) {
		t.Errorf("Devices after failed refresh = %v", got)
	}
}

func TestMonitor_OSVolumeAndPanEvents(t *testing.T) {
	f := newFixture(t, nil, threeDevices)

	f.sim.SetOSVolume("a", 0.3)
	got := waitFor(t, f.events, func(e events.VolumeChanged) bool { return e.DeviceID == "a" })
	if got.Volume != 30 {
		t.Errorf("VolumeChanged = %v, want 30", got.Volume)
	}

	f.sim.SetOSChannels("b", 1, 0.5)
	pan := waitFor(t, f.events, func(e events.PanChanged) bool { return e.DeviceID == "b" })
	if pan.Pan != -50 {
		t.Errorf("PanChanged = %v, want -50", pan.Pan)
	}
}

func TestMonitor_CloseReleasesEverything(t *testing.T) {
	f := newFixture(t, nil, threeDevices)

	f.mon.Close()
	f.mon.Close()

	if n := f.sim.Subscribers(); n != 0 {
		t.Errorf("Subscribers after Close = %d, want 0", n)
	}
	if n := f.sim.OpenHandles(); n != 0 {
		t.Errorf("OpenHandles after Close = %d, want 0", n)
	}
	if got := f.mon.Devices(); len(got) != 0 {
		t.Errorf("Devices after Close = %d, want 0", len(got))
	}

	// Late OS events are ignored.
	f.sim.AddDevice("late", "Late", 2)
	time.Sleep(50 * time.Millisecond)
	f.barrier(t)
	if _, ok := f.mon.Device("late"); ok {
		t.Error("device added after Close")
	}
}
