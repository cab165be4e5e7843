// Package api implements the HTTP control surface for panmix.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/micro-nova/panmix/internal/devices"
	"github.com/micro-nova/panmix/internal/events"
	"github.com/micro-nova/panmix/internal/metrics"
	"github.com/micro-nova/panmix/internal/models"
)

// Monitor is the displayable-device collection.
type Monitor interface {
	Devices() []*devices.Device
	Device(id string) (*devices.Device, bool)
	Refresh()
}

// Editor applies user edits to devices.
type Editor interface {
	SetVolume(ctx context.Context, id string, volume float64) (models.DeviceSettings, error)
	SetPan(ctx context.Context, id string, pan float64) (models.DeviceSettings, error)
	ResetPan(ctx context.Context, id string) (models.DeviceSettings, error)
	Hide(id string) error
	Unhide(id string) error
}

// Preferences reads and flushes per-device settings.
type Preferences interface {
	SyncedSettings(id string) (models.DeviceSettings, error)
	SaveAll()
}

// HiddenDevices lists hidden devices with their names.
type HiddenDevices interface {
	HiddenDeviceInfos() []models.HiddenDevice
}

// EventBus is the interface for subscribing to device events.
type EventBus interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
}

// Deps are the collaborators the router serves.
type Deps struct {
	Monitor Monitor
	Editor  Editor
	Prefs   Preferences
	Hidden  HiddenDevices
	Events  EventBus
	Metrics *metrics.Metrics                // optional; enables GET /metrics
	Auth    func(http.Handler) http.Handler // optional access-key guard
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Deps
	sseClients atomic.Int64
}

// view renders a displayed device with its OS-synchronised settings.
func (h *Handlers) view(dev *devices.Device) (models.DeviceView, error) {
	st, err := h.Prefs.SyncedSettings(dev.ID())
	if err != nil {
		return models.DeviceView{}, err
	}
	return models.DeviceView{ID: dev.ID(), Name: dev.Name(), CanPan: dev.CanPan(), Settings: st}, nil
}

func (h *Handlers) views() []models.DeviceView {
	devs := h.Monitor.Devices()
	out := make([]models.DeviceView, 0, len(devs))
	for _, dev := range devs {
		v, err := h.view(dev)
		if err != nil {
			slog.Warn("api: skipping device without settings", "id", dev.ID(), "err", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as an AppError JSON response.
func writeError(w http.ResponseWriter, err error) {
	appErr := toAppError(err)
	writeJSON(w, appErr.Status, appErr)
}

// toAppError maps domain errors onto HTTP errors.
func toAppError(err error) *models.AppError {
	var appErr *models.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidDeviceID):
		return models.ErrBadRequest(err.Error())
	case errors.Is(err, devices.ErrNotDisplayed):
		return models.ErrNotFound(err.Error())
	case errors.Is(err, devices.ErrPanUnsupported):
		return &models.AppError{Code: "PAN_UNSUPPORTED", Message: err.Error(), Field: "pan", Status: http.StatusBadRequest}
	default:
		return models.ErrInternal(err.Error())
	}
}
