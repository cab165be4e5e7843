package devices_test

import (
	"testing"

	"github.com/micro-nova/panmix/internal/config"
	"github.com/micro-nova/panmix/internal/devices"
	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
	"github.com/micro-nova/panmix/internal/prefs"
)

func newFilter(sim *osaudio.Sim, initial map[string]models.DeviceSettings) (*devices.Filter, *prefs.Service) {
	p := prefs.NewService(config.NewMemStore(initial), nil, prefs.Options{})
	return devices.NewFilter(p, devices.NewNameCache(sim)), p
}

func TestFilter_HiddenDevicesNeverDisplayed(t *testing.T) {
	sim := osaudio.NewSim()
	sim.AddDevice("a", "A", 2)
	sim.AddDevice("b", "B", 2)
	sim.AddDevice("c", "C", 1)
	f, p := newFilter(sim, map[string]models.DeviceSettings{
		"b": {Volume: 100, IsUserHidden: true},
	})
	defer p.Close()

	all, err := sim.ActiveRenderDevices()
	if err != nil {
		t.Fatal(err)
	}
	got := f.Displayable(all)

	var ids []string
	for _, d := range got {
		ids = append(ids, d.ID())
		defer d.Close()
	}
	if !equalIDs(ids, []string{"a", "c"}) {
		t.Errorf("Displayable = %v, want [a c]", ids)
	}
	if n := sim.OpenHandles(); n != 2 {
		t.Errorf("OpenHandles = %d, want 2 (hidden handle must be closed)", n)
	}
}

func TestFilter_CreatesDefaultsForNewDevices(t *testing.T) {
	sim := osaudio.NewSim()
	sim.AddDevice("new", "New", 2)
	f, p := newFilter(sim, nil)
	defer p.Close()

	dev, _ := sim.DeviceByID("new")
	defer dev.Close()
	if !f.Allows(dev) {
		t.Fatal("new device not allowed")
	}
	if _, ok := p.Snapshot()["new"]; !ok {
		t.Error("Allows did not create settings for a new device")
	}
}

func TestFilter_HiddenDeviceInfos(t *testing.T) {
	sim := osaudio.NewSim()
	sim.AddDevice("z-dev", "Zed", 2)
	f, p := newFilter(sim, map[string]models.DeviceSettings{
		"z-dev":  {Volume: 100, IsUserHidden: true},
		"a-gone": {Volume: 100, IsUserHidden: true},
		"shown":  {Volume: 100},
	})
	defer p.Close()

	got := f.HiddenDeviceInfos()
	want := []models.HiddenDevice{
		{ID: "a-gone", Name: "Unknown device(a-go..)"},
		{ID: "z-dev", Name: "Zed"},
	}
	if len(got) != len(want) {
		t.Fatalf("HiddenDeviceInfos = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("HiddenDeviceInfos[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
