// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later

package usage

import (
	"testing"
	"time"
)

// trackerAt builds a tracker whose clock is controlled by the test.
func trackerAt(start time.Time) (*Tracker, *time.Time) {
	clock := start
	t := NewTracker()
	t.now = func() time.Time { return clock }
	t.reset(clock)
	return t, &clock
}

func TestLimits(t *testing.T) {
	tr := NewTracker()
	tests := []struct {
		persona string
		want    int
	}{
		{"astra", 20},
		{"vyra", 10},
		{"nova", 5},
	}
	for _, tt := range tests {
		if got := tr.Remaining(tt.persona); got != tt.want {
			t.Errorf("Remaining(%s) = %d, want %d", tt.persona, got, tt.want)
		}
	}
}

func TestRecord(t *testing.T) {
	tr := NewTracker()
	tr.Record("nova")
	tr.Record("nova")
	if got := tr.Remaining("nova"); got != 3 {
		t.Errorf("Remaining(nova) = %d, want 3", got)
	}
	if tr.Exhausted("nova") {
		t.Error("nova should not be exhausted at 2/5")
	}
}

func TestRecordUnknownPersonaIgnored(t *testing.T) {
	tr := NewTracker()
	tr.Record("auto")
	tr.Record("gpt")
	snap := tr.Snapshot()
	if _, ok := snap.Counters["auto"]; ok {
		t.Error("unknown persona should not gain a counter")
	}
}

func TestExhausted(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 5; i++ {
		tr.Record("nova")
	}
	if !tr.Exhausted("nova") {
		t.Error("nova should be exhausted at 5/5")
	}
	if got := tr.Remaining("nova"); got != 0 {
		t.Errorf("Remaining(nova) = %d, want 0", got)
	}
	// Other personas are unaffected.
	if tr.Exhausted("astra") {
		t.Error("astra should not be exhausted")
	}
}

func TestRollingReset(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr, clock := trackerAt(start)

	for i := 0; i < 5; i++ {
		tr.Record("nova")
	}
	if !tr.Exhausted("nova") {
		t.Fatal("nova should be exhausted")
	}

	// 23 hours later the window has not rolled.
	*clock = start.Add(23 * time.Hour)
	if !tr.Exhausted("nova") {
		t.Error("window should not reset before 24h")
	}

	// 24 hours later the counters reset.
	*clock = start.Add(24 * time.Hour)
	if tr.Exhausted("nova") {
		t.Error("window should reset at 24h")
	}
	if got := tr.Remaining("nova"); got != 5 {
		t.Errorf("Remaining(nova) = %d after reset, want 5", got)
	}
}

func TestRestore(t *testing.T) {
	tr := NewTracker()
	tr.Record("astra")
	tr.Record("astra")
	snap := tr.Snapshot()

	restored := Restore(snap)
	if got := restored.Remaining("astra"); got != 18 {
		t.Errorf("Remaining(astra) = %d after restore, want 18", got)
	}
}

func TestRestoreStaleSnapshotResets(t *testing.T) {
	snap := Snapshot{
		Counters: map[string]Counter{
			"nova": {Used: 5, Limit: 5},
		},
		LastReset: time.Now().Add(-25 * time.Hour),
	}
	restored := Restore(snap)
	if restored.Exhausted("nova") {
		t.Error("stale snapshot should reset on restore")
	}
}

func TestRestoreEmptySnapshot(t *testing.T) {
	restored := Restore(Snapshot{})
	if got := restored.Remaining("vyra"); got != 10 {
		t.Errorf("Remaining(vyra) = %d from empty snapshot, want 10", got)
	}
}
