// Package dispatch implements the single serial execution context on which
// all device-collection mutation and event publication happens. Callbacks
// arriving on other goroutines post work here instead of touching shared
// state directly.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Invoke once the dispatcher has been stopped.
var ErrStopped = errors.New("dispatch: dispatcher stopped")

type op struct {
	fn   func()
	done chan struct{}
}

// Dispatcher runs posted functions one at a time, in posting order, on a
// single goroutine. The queue is unbounded so that a dispatched function may
// itself Post without blocking the loop.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []op
	wake    chan struct{}
	exited  chan struct{}
	running bool
}

// New creates and starts a dispatcher.
func New() *Dispatcher {
	d := &Dispatcher{
		wake:    make(chan struct{}, 1),
		exited:  make(chan struct{}),
		running: true,
	}
	go d.loop()
	return d
}

// Post schedules fn to run on the dispatcher and returns immediately.
// Posts after Stop are dropped.
func (d *Dispatcher) Post(fn func()) {
	if !d.enqueue(op{fn: fn}) {
		slog.Debug("dispatch: post after stop dropped")
	}
}

// Invoke runs fn on the dispatcher and waits for it to finish.
// It must not be called from a function already running on the dispatcher.
func (d *Dispatcher) Invoke(fn func()) error {
	done := make(chan struct{})
	if !d.enqueue(op{fn: fn, done: done}) {
		return ErrStopped
	}
	<-done
	return nil
}

// Stop runs any work already queued and then stops the loop. It is
// idempotent and must not be called from the dispatcher goroutine.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	d.signal()
	<-d.exited
}

func (d *Dispatcher) enqueue(o op) bool {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, o)
	d.mu.Unlock()
	d.signal()
	return true
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop() {
	defer close(d.exited)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		running := d.running
		d.mu.Unlock()

		for _, o := range batch {
			d.run(o.fn)
			if o.done != nil {
				close(o.done)
			}
		}

		if len(batch) > 0 {
			continue
		}
		if !running {
			return
		}
		<-d.wake
	}
}

// run executes fn, logging rather than propagating a panic.
func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: recovered panic in dispatched function", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
