// Package osaudio is the thin boundary to the operating system's audio
// endpoint API. It enumerates render endpoints, opens handles to them and
// delivers endpoint notifications.
//
// Channel scalars are absolute per-channel gains in [0, 1]. The master
// scalar is the loudest channel; setting it rescales every channel and keeps
// their balance.
package osaudio

import "errors"

var (
	// ErrDeviceNotFound is returned when no endpoint has the requested ID.
	ErrDeviceNotFound = errors.New("osaudio: device not found")
	// ErrDeviceInvalid is returned by a handle whose endpoint has gone away
	// or which has been closed.
	ErrDeviceInvalid = errors.New("osaudio: device handle invalid")
	// ErrNoVolumeControl is returned when an endpoint exposes no volume.
	ErrNoVolumeControl = errors.New("osaudio: endpoint has no volume control")
)

// Handlers receives endpoint notifications. Nil fields are ignored.
// Callbacks arrive on arbitrary goroutines.
type Handlers struct {
	DeviceAdded          func(id string)
	DeviceRemoved        func(id string)
	DeviceStateChanged   func(id string)
	DefaultDeviceChanged func(id string)
	PropertyChanged      func(id string)
}

// Service enumerates and opens audio render endpoints.
type Service interface {
	// ActiveRenderDevices opens a handle to every active render endpoint.
	// The caller owns the returned handles.
	ActiveRenderDevices() ([]Device, error)

	// DeviceByID opens a handle to one endpoint. Returns ErrDeviceNotFound
	// if it does not exist.
	DeviceByID(id string) (Device, error)

	// Subscribe registers h and returns a function that unregisters it.
	Subscribe(h Handlers) (unsubscribe func())

	Close() error
}

// Device is an open handle to one endpoint.
type Device interface {
	ID() string
	FriendlyName() (string, error)
	ChannelCount() (int, error)
	MasterScalar() (float64, error)
	ChannelScalar(ch int) (float64, error)
	SetChannelScalar(ch int, v float64) error
	SetMasterScalar(v float64) error

	// OnVolumeNotification registers fn for master volume changes on this
	// endpoint, including those caused by this process.
	OnVolumeNotification(fn func(master float64)) (unsubscribe func())

	// Close releases the handle and drops its notification registrations.
	// It is idempotent.
	Close() error
}

func fire(fn func(string), id string) {
	if fn != nil {
		go fn(id)
	}
}

func clampScalar(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func maxOf(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}

// rescale returns channels scaled so that the loudest becomes master.
// Silent channels all jump to master.
func rescale(channels []float64, master float64) []float64 {
	out := make([]float64, len(channels))
	peak := maxOf(channels)
	for i, c := range channels {
		if peak == 0 {
			out[i] = master
		} else {
			out[i] = clampScalar(c / peak * master)
		}
	}
	return out
}
