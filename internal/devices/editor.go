package devices

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/micro-nova/panmix/internal/models"
	"github.com/micro-nova/panmix/internal/prefs"
)

// Editor applies user edits. Each edit records an interaction so the OS
// echo is suppressed, cancels the previous in-flight apply of the same kind
// for that device, writes to the OS and then updates preferences.
type Editor struct {
	prefs   *prefs.Service
	tracker *prefs.Tracker
	ctrl    *EndpointController
	monitor *Monitor

	mu       sync.Mutex
	inflight map[string]*inflight
}

type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEditor(p *prefs.Service, tracker *prefs.Tracker, ctrl *EndpointController, monitor *Monitor) *Editor {
	return &Editor{
		prefs:    p,
		tracker:  tracker,
		ctrl:     ctrl,
		monitor:  monitor,
		inflight: make(map[string]*inflight),
	}
}

// SetVolume sets the device volume in percent. An edit that rounds to the
// stored value is a no-op, but it still supersedes an earlier volume edit
// that has not reached the OS yet.
func (e *Editor) SetVolume(ctx context.Context, id string, volume float64) (models.DeviceSettings, error) {
	ctx, done := e.begin(ctx, id, "volume")
	defer done()

	_, cur, err := e.current(id)
	if err != nil {
		return cur, err
	}
	target := math.Round(models.ClampVolume(volume))
	if target == math.Round(cur.Volume) {
		return cur, nil
	}

	e.tracker.RecordInteraction(id)
	if err := e.ctrl.ApplyVolume(ctx, id, target, cur.Pan); err != nil {
		if ctx.Err() != nil {
			// Superseded by a newer edit.
			return cur, nil
		}
		slog.Warn("devices: volume apply failed", "id", id, "err", err)
	}
	return e.prefs.Modify(id, func(s models.DeviceSettings) models.DeviceSettings {
		s.Volume = target
		return s
	})
}

// SetPan sets the device balance. An edit that rounds to the stored value
// is a no-op, but it still supersedes an earlier pan edit or reset.
func (e *Editor) SetPan(ctx context.Context, id string, pan float64) (models.DeviceSettings, error) {
	ctx, done := e.begin(ctx, id, "pan")
	defer done()

	dev, cur, err := e.current(id)
	if err != nil {
		return cur, err
	}
	if !dev.CanPan() {
		return cur, ErrPanUnsupported
	}
	target := math.Round(models.ClampPan(pan))
	if target == math.Round(cur.Pan) {
		return cur, nil
	}

	if err := e.applyPan(ctx, id, target); err != nil {
		return cur, nil
	}
	return e.prefs.Modify(id, func(s models.DeviceSettings) models.DeviceSettings {
		s.Pan = target
		return s
	})
}

// ResetPan toggles between centered and the remembered pan. It follows the
// SetPan path, so the OS echo of the reset is suppressed too. A superseded
// reset leaves preferences untouched.
func (e *Editor) ResetPan(ctx context.Context, id string) (models.DeviceSettings, error) {
	ctx, done := e.begin(ctx, id, "pan")
	defer done()

	dev, cur, err := e.current(id)
	if err != nil {
		return cur, err
	}
	if !dev.CanPan() {
		return cur, ErrPanUnsupported
	}
	next := cur.WithPanReset()
	if next == cur {
		return cur, nil
	}

	if err := e.applyPan(ctx, id, next.Pan); err != nil {
		return cur, nil
	}
	return e.prefs.ResetPan(id)
}

// Hide marks the device hidden and refreshes the collection, which removes
// it.
func (e *Editor) Hide(id string) error {
	if err := e.prefs.SetUserHidden(id, true); err != nil {
		return err
	}
	e.monitor.Refresh()
	return nil
}

// Unhide clears the hidden flag and refreshes the collection, which adds
// the device back if it is active.
func (e *Editor) Unhide(id string) error {
	if err := e.prefs.SetUserHidden(id, false); err != nil {
		return err
	}
	e.monitor.Refresh()
	return nil
}

// applyPan returns an error only when the apply was superseded.
func (e *Editor) applyPan(ctx context.Context, id string, pan float64) error {
	e.tracker.RecordInteraction(id)
	if err := e.ctrl.ApplyPan(ctx, id, pan); err != nil {
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("devices: pan apply failed", "id", id, "err", err)
	}
	return nil
}

func (e *Editor) current(id string) (*Device, models.DeviceSettings, error) {
	if id == "" {
		return nil, models.DeviceSettings{}, models.ErrInvalidDeviceID
	}
	dev, ok := e.monitor.Device(id)
	if !ok {
		return nil, models.DeviceSettings{}, ErrNotDisplayed
	}
	st, err := e.prefs.Settings(id)
	return dev, st, err
}

// begin cancels the previous edit of kind for id, waits for it to finish and
// registers a new one. Edits of one kind for one device therefore run one at
// a time, and a cancelled edit has either written both the OS and
// preferences or neither.
func (e *Editor) begin(parent context.Context, id, kind string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	cur := &inflight{cancel: cancel, done: make(chan struct{})}
	key := id + "/" + kind

	e.mu.Lock()
	prev := e.inflight[key]
	e.inflight[key] = cur
	e.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	return ctx, func() {
		cancel()
		e.mu.Lock()
		if e.inflight[key] == cur {
			delete(e.inflight, key)
		}
		e.mu.Unlock()
		close(cur.done)
	}
}
