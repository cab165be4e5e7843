// Package prefs holds the authoritative in-memory device preferences and the
// record of recent user edits used for echo suppression.
package prefs

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
)

// Tracker records the last time the user changed each device. Safe for
// concurrent use from any goroutine. Entries are never evicted; device-ID
// cardinality is small and session-scoped.
type Tracker struct {
	clock clockwork.Clock
	last  *xsync.MapOf[string, time.Time]
}

// NewTracker returns a tracker reading time from clock (real time if nil).
func NewTracker(clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		clock: clock,
		last:  xsync.NewMapOf[string, time.Time](),
	}
}

// RecordInteraction stamps id with the current time.
func (t *Tracker) RecordInteraction(id string) {
	t.last.Store(id, t.clock.Now())
}

// LastInteraction returns when id was last edited, or the zero time if never.
func (t *Tracker) LastInteraction(id string) time.Time {
	ts, _ := t.last.Load(id)
	return ts
}

// WithinGrace reports whether id was edited less than grace ago.
func (t *Tracker) WithinGrace(id string, grace time.Duration) bool {
	ts, ok := t.last.Load(id)
	if !ok {
		return false
	}
	return t.clock.Since(ts) < grace
}
