package devices

import (
	"log/slog"
	"sync"

	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/osaudio"
)

// Device is a displayable endpoint. It exclusively owns its OS handle and
// its VolumeNotifier; Close is the only way either is released.
type Device struct {
	id       string
	name     string
	canPan   bool
	handle   osaudio.Device
	notifier *VolumeNotifier
	once     sync.Once
}

func newDevice(handle osaudio.Device, name string, notifier *VolumeNotifier) *Device {
	channels, err := handle.ChannelCount()
	if err != nil {
		slog.Debug("devices: could not read channel count", "id", handle.ID(), "err", err)
	}
	d := &Device{
		id:       handle.ID(),
		name:     name,
		canPan:   err == nil && channels >= 2,
		handle:   handle,
		notifier: notifier,
	}
	notifier.Attach(handle)
	return d
}

func (d *Device) ID() string   { return d.id }
func (d *Device) Name() string { return d.name }

// CanPan reports whether the endpoint has at least two channels.
func (d *Device) CanPan() bool { return d.canPan }

// SetStereoScalars writes absolute left and right channel levels.
func (d *Device) SetStereoScalars(left, right float64) error {
	if err := d.handle.SetChannelScalar(0, left); err != nil {
		return err
	}
	return d.handle.SetChannelScalar(1, right)
}

// SetMonoScalar writes the master level.
func (d *Device) SetMonoScalar(v float64) error {
	return d.handle.SetMasterScalar(v)
}

// MasterVolume returns the current OS volume in percent, unrounded.
func (d *Device) MasterVolume() (float64, error) {
	s, err := d.handle.MasterScalar()
	if err != nil {
		return 0, err
	}
	return s * models.MaxVolume, nil
}

// Close tears down the notifier before releasing the handle. It is
// idempotent.
func (d *Device) Close() {
	d.once.Do(func() {
		d.notifier.Close()
		if err := d.handle.Close(); err != nil {
			slog.Debug("devices: error closing handle", "id", d.id, "err", err)
		}
	})
}
