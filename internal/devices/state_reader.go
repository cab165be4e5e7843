package devices

import (
	"errors"
	"math"

	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
)

// StateReader reads a device's current volume and pan from the OS. It
// implements prefs.StateReader.
type StateReader struct {
	svc osaudio.Service
}

func NewStateReader(svc osaudio.Service) *StateReader {
	return &StateReader{svc: svc}
}

// ReadState returns the rounded OS volume and pan. Endpoints without a
// volume control report the defaults. Devices with fewer than two channels
// report a centered pan.
func (r *StateReader) ReadState(id string) (models.DeviceSettings, error) {
	dev, err := r.svc.DeviceByID(id)
	if err != nil {
		return models.DeviceSettings{}, err
	}
	defer dev.Close()

	st := models.DefaultSettings()
	channels, err := dev.ChannelCount()
	if errors.Is(err, osaudio.ErrNoVolumeControl) {
		return st, nil
	}
	if err != nil {
		return models.DeviceSettings{}, err
	}

	master, err := dev.MasterScalar()
	if err != nil {
		return models.DeviceSettings{}, err
	}
	st.Volume = models.ScalarToVolume(master)

	if channels >= 2 {
		left, err := dev.ChannelScalar(0)
		if err != nil {
			return models.DeviceSettings{}, err
		}
		right, err := dev.ChannelScalar(1)
		if err != nil {
			return models.DeviceSettings{}, err
		}
		st.Pan = math.Round(models.ScalarsToPan(left, right))
	}
	return st, nil
}
