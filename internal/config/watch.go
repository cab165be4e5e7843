package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/micro-nova/panmix/internal/debounce"
)

// watchSettle coalesces the burst of events a single editor save produces.
const watchSettle = 100 * time.Millisecond

// Watcher reports external edits to the preferences file. Writes made by the
// store itself are recognised by content and ignored.
type Watcher struct {
	store    *JSONStore
	onChange func()
	fsw      *fsnotify.Watcher
	settle   *debounce.Debouncer[struct{}]
	done     chan struct{}
	once     sync.Once
}

// NewWatcher starts watching the directory that holds store's file.
// onChange runs on a timer goroutine after an external edit settles.
func NewWatcher(store *JSONStore, onChange func()) (*Watcher, error) {
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		store:    store,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	w.settle = debounce.New(clockwork.NewRealClock(), watchSettle, func(struct{}) { w.check() })
	go w.watchLoop()
	return w, nil
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	path := w.store.Path()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name == path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				w.settle.Push(struct{}{})
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "err", err)
		}
	}
}

func (w *Watcher) check() {
	data, err := os.ReadFile(w.store.Path())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config: failed to read preferences after change", "err", err)
		}
		return
	}
	if w.store.WrittenByStore(data) {
		return
	}
	slog.Info("config: preferences file changed externally", "path", w.store.Path())
	w.onChange()
}

// Close stops watching. It is idempotent.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fsw.Close()
		<-w.done
		w.settle.Stop()
	})
	return err
}
