package devices_test

import (
	"errors"
	"testing"

	"github.com/micro-nova/panmix/internal/devices"
	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
)

func TestStateReader(t *testing.T) {
	sim := osaudio.NewSim()
	sim.AddDevice("stereo", "Stereo", 2)
	sim.AddDevice("mono", "Mono", 1)
	sim.AddDevice("fixed", "Fixed", 2)
	sim.SetOSChannels("stereo", 0.426, 0.213)
	sim.SetOSVolume("mono", 0.5)
	sim.SetNoVolume("fixed", true)
	r := devices.NewStateReader(sim)

	tests := []struct {
		id   string
		want models.DeviceSettings
	}{
		{"stereo", models.DeviceSettings{Volume: 43, Pan: -50}},
		{"mono", models.DeviceSettings{Volume: 50, Pan: 0}},
		{"fixed", models.DefaultSettings()},
	}
	for _, tc := range tests {
		got, err := r.ReadState(tc.id)
		if err != nil {
			t.Errorf("ReadState(%s): %v", tc.id, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ReadState(%s) = %+v, want %+v", tc.id, got, tc.want)
		}
	}
	if n := sim.OpenHandles(); n != 0 {
		t.Errorf("ReadState leaked %d handles", n)
	}
}

func TestStateReader_Failures(t *testing.T) {
	sim := osaudio.NewSim()
	sim.AddDevice("dev", "Dev", 2)
	r := devices.NewStateReader(sim)

	if _, err := r.ReadState("missing"); !errors.Is(err, osaudio.ErrDeviceNotFound) {
		t.Errorf("missing device err = %v, want ErrDeviceNotFound", err)
	}
	sim.SetFailRead(true)
	if _, err := r.ReadState("dev"); err == nil {
		t.Error("expected read failure")
	}
}
