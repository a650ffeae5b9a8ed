package sessionlib

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time so the engine can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// ManualClock is a Clock whose time only moves when told to.
// It is safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock starting at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps the clock to the given instant.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// TimingAccuracy classifies the accumulated tick drift.
type TimingAccuracy string

const (
	// AccuracyHigh means |drift| is within highPrecisionDrift.
	AccuracyHigh TimingAccuracy = "high"
	// AccuracyAcceptable means |drift| is within acceptableDrift.
	AccuracyAcceptable TimingAccuracy = "acceptable"
	// AccuracyDegraded means drift exceeded acceptableDrift; the session
	// keeps running with corrected values but a timingPrecisionLost warning
	// is raised.
	AccuracyDegraded TimingAccuracy = "degraded"
)

const (
	highPrecisionDrift = 2 * time.Second
	acceptableDrift    = 10 * time.Second
)

// DriftTracker accumulates the discrepancy between the elapsed time implied
// by the tick count and the actual wall-clock elapsed time within one
// uninterrupted running segment. The engine folds the segment drift into the
// record and resets the tracker whenever the segment boundary changes
// (pause, resume, wake, tick-interval change).
type DriftTracker struct {
	startedAt time.Time
	interval  time.Duration
	ticks     int64
	drift     time.Duration
}

// NewDriftTracker starts a tracking segment at the given instant with the
// given expected tick interval.
func NewDriftTracker(start time.Time, interval time.Duration) *DriftTracker {
	return &DriftTracker{startedAt: start, interval: interval}
}

// Tick records one tick observed at the given instant and returns the
// signed drift of the segment so far. Positive drift means ticks are firing
// behind the wall clock.
func (t *DriftTracker) Tick(now time.Time) time.Duration {
	t.ticks++
	expected := time.Duration(t.ticks) * t.interval
	actual := now.Sub(t.startedAt)
	t.drift = actual - expected
	return t.drift
}

// Drift returns the current segment drift.
func (t *DriftTracker) Drift() time.Duration { return t.drift }

// Accuracy classifies the given total accumulated drift.
func Accuracy(drift time.Duration) TimingAccuracy {
	if drift < 0 {
		drift = -drift
	}
	switch {
	case drift <= highPrecisionDrift:
		return AccuracyHigh
	case drift <= acceptableDrift:
		return AccuracyAcceptable
	default:
		return AccuracyDegraded
	}
}
