package devices_test

import (
	"testing"

	"github.com/micro-nova/panmix/internal/devices"
	"github.com/micro-nova/panmix/internal/osaudio"
)

func TestNameCache_ResolvesAndCaches(t *testing.T) {
	sim := osaudio.NewSim()
	sim.AddDevice("dev-1", "Speakers", 2)
	c := devices.NewNameCache(sim)

	if got := c.NameByID("dev-1"); got != "Speakers" {
		t.Errorf("NameByID = %q, want Speakers", got)
	}
	if n := sim.OpenHandles(); n != 0 {
		t.Errorf("NameByID leaked %d handles", n)
	}

	sim.SetFailName("dev-1", true)
	if got := c.NameByID("dev-1"); got != "Speakers" {
		t.Errorf("cached NameByID = %q, want Speakers", got)
	}
}

func TestNameCache_PlaceholderOnFailure(t *testing.T) {
	sim := osaudio.NewSim()
	c := devices.NewNameCache(sim)

	tests := []struct {
		id   string
		want string
	}{
		{"{0.0.0.00000000}.{abc}", "Unknown device({0.0..)"},
		{"ab", "Unknown device(ab..)"},
	}
	for _, tc := range tests {
		if got := c.NameByID(tc.id); got != tc.want {
			t.Errorf("NameByID(%q) = %q, want %q", tc.id, got, tc.want)
		}
		if cached, ok := c.Cached(tc.id); !ok || cached != tc.want {
			t.Errorf("placeholder for %q not cached", tc.id)
		}
	}

	// The cached placeholder survives the device appearing later.
	sim.AddDevice("ab", "Late", 2)
	if got := c.NameByID("ab"); got != "Unknown device(ab..)" {
		t.Errorf("NameByID after add = %q, want cached placeholder", got)
	}
	c.Invalidate("ab")
	if got := c.NameByID("ab"); got != "Late" {
		t.Errorf("NameByID after Invalidate = %q, want Late", got)
	}
}

func TestNameCache_NameFromHandle(t *testing.T) {
	sim := osaudio.NewSim()
	sim.AddDevice("dev-1", "Speakers", 2)
	sim.SetFailName("dev-1", true)
	c := devices.NewNameCache(sim)

	dev, err := sim.DeviceByID("dev-1")
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if got := c.Name(dev); got != "Unknown device(dev-..)" {
		t.Errorf("Name = %q, want placeholder", got)
	}
}
