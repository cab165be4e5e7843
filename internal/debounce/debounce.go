// Package debounce provides trailing-edge coalescing operators: within the
// window only the most recent input survives, and the window restarts on
// every new input.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer delivers the most recent value pushed once the input has been
// quiet for the configured window. All methods are safe for concurrent use.
type Debouncer[T any] struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	window  time.Duration
	fn      func(T)
	timer   clockwork.Timer
	pending T
	has     bool
	seq     uint64
	stopped bool
}

// New creates a Debouncer that calls fn on the trailing edge of each burst.
// fn runs on a timer goroutine, never while the Debouncer's lock is held.
func New[T any](clock clockwork.Clock, window time.Duration, fn func(T)) *Debouncer[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer[T]{
		clock:  clock,
		window: window,
		fn:     fn,
	}
}

// Push records v as the latest value and restarts the window.
// Pushes after Stop are ignored.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = v
	d.has = true
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.window, func() { d.fire(seq) })
}

// fire delivers the pending value if no newer Push superseded seq.
func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq || !d.has {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.clearLocked()
	d.mu.Unlock()

	d.fn(v)
}

// Flush delivers any pending value immediately on the calling goroutine and
// reports whether there was one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.has {
		d.mu.Unlock()
		return false
	}
	v := d.pending
	d.clearLocked()
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Cancel drops any pending value without delivering it.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
}

// Pending reports whether a value is waiting for its window to close.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.has
}

// Stop cancels any pending delivery and ignores all further pushes.
// No delivery starts after Stop returns. Stop is idempotent.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	d.stopped = true
}

func (d *Debouncer[T]) clearLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero T
	d.pending = zero
	d.has = false
	d.seq++
}
