package devices

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/micro-nova/panmix/internal/metrics"
	"github.com/micro-nova/panmix/internal/models"
)

// DefaultMaxWritesPerSecond caps how fast slider drags reach the OS.
const DefaultMaxWritesPerSecond = 60

var (
	// ErrNotDisplayed is returned for devices outside the displayable
	// collection.
	ErrNotDisplayed = errors.New("devices: device not displayed")
	// ErrPanUnsupported is returned when panning a mono device.
	ErrPanUnsupported = errors.New("devices: device has fewer than two channels")
)

// DisplayedDevices looks up devices in the displayable collection.
type DisplayedDevices interface {
	Device(id string) (*Device, bool)
}

// EndpointController applies volume and pan to displayed devices.
type EndpointController struct {
	devices DisplayedDevices
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func NewEndpointController(devices DisplayedDevices, writesPerSecond int, m *metrics.Metrics) *EndpointController {
	if writesPerSecond <= 0 {
		writesPerSecond = DefaultMaxWritesPerSecond
	}
	return &EndpointController{
		devices: devices,
		limiter: rate.NewLimiter(rate.Limit(writesPerSecond), 5),
		metrics: m,
	}
}

// ApplyVolume sets the device to volume percent with the given balance.
// Stereo devices get master*left and master*right per channel; mono devices
// get the master level.
func (c *EndpointController) ApplyVolume(ctx context.Context, id string, volume, pan float64) error {
	dev, ok := c.devices.Device(id)
	if !ok {
		return ErrNotDisplayed
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	master := models.VolumeToScalar(volume)
	var err error
	if dev.CanPan() {
		left, right := models.PanToScalars(pan)
		err = dev.SetStereoScalars(master*left, master*right)
	} else {
		err = dev.SetMonoScalar(master)
	}
	c.metrics.OSWrite(err)
	if err != nil {
		return fmt.Errorf("apply volume to %s: %w", id, err)
	}
	return nil
}

// ApplyPan rebalances the device at its current OS volume.
func (c *EndpointController) ApplyPan(ctx context.Context, id string, pan float64) error {
	dev, ok := c.devices.Device(id)
	if !ok {
		return ErrNotDisplayed
	}
	if !dev.CanPan() {
		return ErrPanUnsupported
	}
	volume, err := dev.MasterVolume()
	if err != nil {
		return fmt.Errorf("read volume of %s: %w", id, err)
	}
	return c.ApplyVolume(ctx, id, volume, pan)
}
