package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/panmix/internal/devices"
	"github.com/micro-nova/panmix/internal/models"
)

func (h *Handlers) getDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.views())
}

func (h *Handlers) getDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.Monitor.Device(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, devices.ErrNotDisplayed)
		return
	}
	v, err := h.view(dev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// setDevice applies a volume and/or pan edit. Volume is applied first so a
// combined request pans at the new level.
func (h *Handlers) setDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var upd models.DeviceUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON: "+err.Error()))
		return
	}
	if upd.Volume == nil && upd.Pan == nil {
		writeError(w, models.ErrBadRequest("volume or pan is required"))
		return
	}

	dev, ok := h.Monitor.Device(id)
	if !ok {
		writeError(w, devices.ErrNotDisplayed)
		return
	}
	var st models.DeviceSettings
	var err error
	if upd.Volume != nil {
		if st, err = h.Editor.SetVolume(r.Context(), id, *upd.Volume); err != nil {
			writeError(w, err)
			return
		}
	}
	if upd.Pan != nil {
		if st, err = h.Editor.SetPan(r.Context(), id, *upd.Pan); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, models.DeviceView{ID: id, Name: dev.Name(), CanPan: dev.CanPan(), Settings: st})
}

func (h *Handlers) resetPan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dev, ok := h.Monitor.Device(id)
	if !ok {
		writeError(w, devices.ErrNotDisplayed)
		return
	}
	st, err := h.Editor.ResetPan(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DeviceView{ID: id, Name: dev.Name(), CanPan: dev.CanPan(), Settings: st})
}

func (h *Handlers) hideDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.Editor.Hide(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) unhideDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.Editor.Unhide(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getHidden(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Hidden.HiddenDeviceInfos())
}

// refresh schedules a resynchronisation; the result arrives as events.
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	h.Monitor.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) save(w http.ResponseWriter, r *http.Request) {
	h.Prefs.SaveAll()
	w.WriteHeader(http.StatusNoContent)
}
