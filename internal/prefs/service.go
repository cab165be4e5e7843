package prefs

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/micro-nova/panmix/internal/config"
	"github.com/micro-nova/panmix/internal/debounce"
	"github.com/micro-nova/panmix/internal/models"
)

// DefaultAutoSaveDelay is the trailing window before a burst of mutations is
// written to the store.
const DefaultAutoSaveDelay = 3 * time.Second

// StateReader reads a device's current volume and pan from the OS. Only the
// Volume and Pan fields of the result are used.
type StateReader interface {
	ReadState(id string) (models.DeviceSettings, error)
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Clock         clockwork.Clock
	AutoSaveDelay time.Duration
	// OnSave, if set, is called after each write to the store.
	OnSave func()
}

// Service is the single authoritative cache of per-device settings. Reads
// and writes are safe from any goroutine; every mutation schedules a
// debounced write of the whole cache.
type Service struct {
	store  config.Store
	reader StateReader
	cache  *xsync.MapOf[string, models.DeviceSettings]
	saver  *debounce.Debouncer[struct{}]
	onSave func()

	saveMu sync.Mutex
	closed atomic.Bool
}

// NewService loads the store into memory. reader may be nil, in which case
// new devices start from models.DefaultSettings.
func NewService(store config.Store, reader StateReader, opts Options) *Service {
	if opts.AutoSaveDelay <= 0 {
		opts.AutoSaveDelay = DefaultAutoSaveDelay
	}
	s := &Service{
		store:  store,
		reader: reader,
		cache:  xsync.NewMapOf[string, models.DeviceSettings](),
		onSave: opts.OnSave,
	}
	for id, st := range store.Load() {
		s.cache.Store(id, st.Clamp())
	}
	s.saver = debounce.New(opts.Clock, opts.AutoSaveDelay, func(struct{}) { s.write() })
	slog.Info("prefs: loaded device preferences", "path", store.Path(), "devices", s.cache.Size())
	return s
}

// Settings returns the cached settings for id, creating them from the
// device's current OS state the first time the device is seen.
func (s *Service) Settings(id string) (models.DeviceSettings, error) {
	if id == "" {
		return models.DeviceSettings{}, models.ErrInvalidDeviceID
	}
	if st, ok := s.cache.Load(id); ok {
		return st, nil
	}
	st, loaded := s.cache.LoadOrStore(id, s.defaultsFor(id))
	if !loaded {
		s.requestSave()
	}
	return st, nil
}

// SyncedSettings reads the device's OS volume and pan and merges them into
// the cache, keeping IsUserHidden and PanBeforeReset. If the OS read fails
// the cached (or newly defaulted) value is returned.
func (s *Service) SyncedSettings(id string) (models.DeviceSettings, error) {
	if id == "" {
		return models.DeviceSettings{}, models.ErrInvalidDeviceID
	}
	if s.reader == nil {
		return s.Settings(id)
	}
	osState, err := s.reader.ReadState(id)
	if err != nil {
		slog.Debug("prefs: OS read failed, using cached settings", "id", id, "err", err)
		return s.Settings(id)
	}
	osState = osState.Clamp()

	changed := false
	merged, _ := s.cache.Compute(id, func(old models.DeviceSettings, loaded bool) (models.DeviceSettings, bool) {
		next := models.DeviceSettings{Volume: osState.Volume, Pan: osState.Pan}
		if loaded {
			next.IsUserHidden = old.IsUserHidden
			next.PanBeforeReset = old.PanBeforeReset
		}
		changed = !loaded || next != old
		return next, false
	})
	if changed {
		s.requestSave()
	}
	return merged, nil
}

// Update replaces the settings for id with a clamped copy of st.
func (s *Service) Update(id string, st models.DeviceSettings) error {
	if id == "" {
		return models.ErrInvalidDeviceID
	}
	s.cache.Store(id, st.Clamp())
	s.requestSave()
	return nil
}

// Modify applies fn to the current settings for id atomically and stores
// the clamped result. fn must not block.
func (s *Service) Modify(id string, fn func(models.DeviceSettings) models.DeviceSettings) (models.DeviceSettings, error) {
	if id == "" {
		return models.DeviceSettings{}, models.ErrInvalidDeviceID
	}
	s.ensure(id)
	next, _ := s.cache.Compute(id, func(old models.DeviceSettings, loaded bool) (models.DeviceSettings, bool) {
		if !loaded {
			old = models.DefaultSettings()
		}
		return fn(old).Clamp(), false
	})
	s.requestSave()
	return next, nil
}

// SetUserHidden marks id hidden or visible.
func (s *Service) SetUserHidden(id string, hidden bool) error {
	if id == "" {
		return models.ErrInvalidDeviceID
	}
	s.ensure(id)
	s.cache.Compute(id, func(old models.DeviceSettings, loaded bool) (models.DeviceSettings, bool) {
		if !loaded {
			old = models.DefaultSettings()
		}
		old.IsUserHidden = hidden
		return old, false
	})
	s.requestSave()
	return nil
}

// ResetPan toggles the pan between centered and the remembered value and
// returns the new settings.
func (s *Service) ResetPan(id string) (models.DeviceSettings, error) {
	if id == "" {
		return models.DeviceSettings{}, models.ErrInvalidDeviceID
	}
	s.ensure(id)
	next, _ := s.cache.Compute(id, func(old models.DeviceSettings, loaded bool) (models.DeviceSettings, bool) {
		if !loaded {
			old = models.DefaultSettings()
		}
		return old.WithPanReset(), false
	})
	s.requestSave()
	return next, nil
}

// HiddenDeviceIDs returns the IDs marked hidden, sorted.
func (s *Service) HiddenDeviceIDs() []string {
	var ids []string
	s.cache.Range(func(id string, st models.DeviceSettings) bool {
		if st.IsUserHidden {
			ids = append(ids, id)
		}
		return true
	})
	sort.Strings(ids)
	return ids
}

// IsHidden reports whether id is marked hidden without creating an entry.
func (s *Service) IsHidden(id string) bool {
	st, ok := s.cache.Load(id)
	return ok && st.IsUserHidden
}

// Snapshot returns a copy of the whole cache.
func (s *Service) Snapshot() map[string]models.DeviceSettings {
	out := make(map[string]models.DeviceSettings, s.cache.Size())
	s.cache.Range(func(id string, st models.DeviceSettings) bool {
		out[id] = st
		return true
	})
	return out
}

// Reload merges the store's current content into the cache after an
// external edit. Entries present in the file replace cached ones; devices
// only known in memory are kept. It returns the IDs whose hidden flag
// changed.
func (s *Service) Reload() []string {
	var flipped []string
	for id, st := range s.store.Load() {
		st = st.Clamp()
		if old, ok := s.cache.Load(id); ok && old.IsUserHidden != st.IsUserHidden {
			flipped = append(flipped, id)
		} else if !ok && st.IsUserHidden {
			flipped = append(flipped, id)
		}
		s.cache.Store(id, st)
	}
	sort.Strings(flipped)
	slog.Info("prefs: reloaded preferences", "hidden_changed", len(flipped))
	return flipped
}

// SaveAll writes the cache immediately and cancels any pending debounced
// write.
func (s *Service) SaveAll() {
	s.saver.Cancel()
	s.write()
}

// Close stops auto-save and performs a final SaveAll. It is idempotent.
func (s *Service) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.saver.Stop()
	s.write()
}

func (s *Service) requestSave() {
	if s.closed.Load() {
		// After Close only an explicit SaveAll persists.
		return
	}
	s.saver.Push(struct{}{})
}

func (s *Service) write() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.store.Save(s.Snapshot())
	if s.onSave != nil {
		s.onSave()
	}
}

// ensure seeds id from OS state outside the map lock so that Compute
// callbacks never touch the OS.
func (s *Service) ensure(id string) {
	if _, ok := s.cache.Load(id); !ok {
		s.cache.LoadOrStore(id, s.defaultsFor(id))
	}
}

func (s *Service) defaultsFor(id string) models.DeviceSettings {
	def := models.DefaultSettings()
	if s.reader == nil {
		return def
	}
	osState, err := s.reader.ReadState(id)
	if err != nil {
		slog.Debug("prefs: could not read OS state for defaults", "id", id, "err", err)
		return def
	}
	def.Volume = osState.Volume
	def.Pan = osState.Pan
	return def.Clamp()
}
