// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package usage tracks per-persona request counters with a rolling
// 24-hour reset window.
package usage

import (
	"sync"
	"time"
)

// resetWindow is how long counters accumulate before rolling over.
const resetWindow = 24 * time.Hour

// limits caps requests per persona per window.
var limits = map[string]int{
	"astra": 20,
	"vyra":  10,
	"nova":  5,
}

// Counter is the state for one persona within the current window.
type Counter struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	ResetTime time.Time `json:"resetTime"`
}

// Snapshot is the persisted form of all counters for one account.
type Snapshot struct {
	Counters  map[string]Counter `json:"counters"`
	LastReset time.Time          `json:"lastReset"`
}

// Tracker maintains usage counters for one signed-in account.
type Tracker struct {
	mu       sync.Mutex
	counters map[string]Counter
	last     time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewTracker creates a tracker with fresh counters.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.reset(t.now())
	return t
}

// Restore rebuilds a tracker from a persisted snapshot, applying the
// rolling reset if the window has elapsed.
func Restore(snap Snapshot) *Tracker {
	t := &Tracker{now: time.Now}
	if snap.Counters == nil || snap.LastReset.IsZero() {
		t.reset(t.now())
		return t
	}
	t.counters = snap.Counters
	t.last = snap.LastReset
	t.maybeReset()
	return t
}

// reset zeroes every counter and stamps the window start. Caller holds
// the lock (or the tracker is not yet shared).
func (t *Tracker) reset(at time.Time) {
	t.counters = make(map[string]Counter, len(limits))
	for persona, limit := range limits {
		t.counters[persona] = Counter{
			Limit:     limit,
			ResetTime: at.Add(resetWindow),
		}
	}
	t.last = at
}

func (t *Tracker) maybeReset() {
	if now := t.now(); now.Sub(t.last) >= resetWindow {
		t.reset(now)
	}
}

// Record increments the counter for a persona after a completed request.
// Unknown personas (such as "auto", which the server resolves itself) are
// ignored.
func (t *Tracker) Record(persona string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeReset()

	c, ok := t.counters[persona]
	if !ok {
		return
	}
	c.Used++
	t.counters[persona] = c
}

// Remaining returns how many requests are left for a persona in the
// current window. Unknown personas report zero.
func (t *Tracker) Remaining(persona string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeReset()

	c, ok := t.counters[persona]
	if !ok {
		return 0
	}
	if c.Used >= c.Limit {
		return 0
	}
	return c.Limit - c.Used
}

// Exhausted reports whether a persona has used up its window allowance.
func (t *Tracker) Exhausted(persona string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeReset()

	c, ok := t.counters[persona]
	if !ok {
		return false
	}
	return c.Used >= c.Limit
}

// Snapshot captures the current state for persistence.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeReset()

	out := make(map[string]Counter, len(t.counters))
	for k, v := range t.counters {
		out[k] = v
	}
	return Snapshot{Counters: out, LastReset: t.last}
}
