package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Group debounces each key independently. A key's Debouncer is created on the
// first Push for it and lives until Remove or Stop.
type Group[K comparable, T any] struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	window  time.Duration
	fn      func(K, T)
	keys    map[K]*Debouncer[T]
	stopped bool
}

// NewGroup creates a keyed debounce group delivering to fn.
func NewGroup[K comparable, T any](clock clockwork.Clock, window time.Duration, fn func(K, T)) *Group[K, T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Group[K, T]{
		clock:  clock,
		window: window,
		fn:     fn,
		keys:   make(map[K]*Debouncer[T]),
	}
}

// Push feeds v into the debouncer for key.
func (g *Group[K, T]) Push(key K, v T) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	d, ok := g.keys[key]
	if !ok {
		d = New(g.clock, g.window, func(v T) { g.fn(key, v) })
		g.keys[key] = d
	}
	g.mu.Unlock()

	d.Push(v)
}

// Remove stops and forgets the debouncer for key, dropping any pending value.
func (g *Group[K, T]) Remove(key K) {
	g.mu.Lock()
	d, ok := g.keys[key]
	delete(g.keys, key)
	g.mu.Unlock()
	if ok {
		d.Stop()
	}
}

// Len returns the number of keys with a live debouncer.
func (g *Group[K, T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

// Stop stops every key's debouncer and ignores further pushes.
func (g *Group[K, T]) Stop() {
	g.mu.Lock()
	keys := g.keys
	g.keys = make(map[K]*Debouncer[T])
	g.stopped = true
	g.mu.Unlock()

	for _, d := range keys {
		d.Stop()
	}
}
