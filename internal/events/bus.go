// Package events carries device changes from the dispatcher to UI clients.
// Publishers are the monitor (devices added or removed) and the OS
// notifiers (volume and pan moved outside panmix). Publish runs on the
// dispatcher goroutine, so it must never block on a slow client.
package events

import (
	"log/slog"
	"sync"
)

// subBufferSize covers a burst of debounced notifications for every device
// plus a full refresh. A client that falls further behind loses events, not
// state: the next devices snapshot or GET brings it back in sync.
const subBufferSize = 64

// Bus fans events out to subscribers keyed by ID. Events for a subscriber
// whose buffer is full are dropped.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan Event),
	}
}

// Subscribe creates a subscription with the given ID. Subscribing again
// with the same ID closes the earlier channel.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan Event, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		slog.Debug("events: dropped event for slow subscribers", "kind", ev.Kind(), "subscribers", dropped)
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
