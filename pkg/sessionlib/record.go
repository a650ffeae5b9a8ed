// Package sessionlib provides the core scheduling engine for vigil work
// sessions. It contains the session record, the drift-corrected timer, the
// periodic command execution policy, and the checkpoint persistence contract.
package sessionlib

import (
	"time"
)

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	// StateIdle means no session is live.
	StateIdle SessionState = "idle"
	// StateRunning means the session clock is advancing.
	StateRunning SessionState = "running"
	// StatePaused means the session clock is frozen.
	StatePaused SessionState = "paused"
	// StateCompleted means the session reached its planned duration.
	StateCompleted SessionState = "completed"
	// StateError means the session halted on a non-recoverable error.
	StateError SessionState = "error"
	// StateRecovering means a failed command invocation is being retried.
	StateRecovering SessionState = "recovering"
	// StateBackgrounded means the host lost foreground; the clock keeps advancing.
	StateBackgrounded SessionState = "backgrounded"
)

// Active reports whether the state belongs to a live, non-resting session.
func (s SessionState) Active() bool {
	switch s {
	case StateRunning, StatePaused, StateRecovering, StateBackgrounded:
		return true
	}
	return false
}

// Terminal reports whether the state is a resting state from which a new
// session may be started.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// SleepWakeKind discriminates entries in the sleep/wake log.
type SleepWakeKind string

const (
	SleepEvent SleepWakeKind = "sleep"
	WakeEvent  SleepWakeKind = "wake"
)

// SleepWakeEntry is one entry of the append-only suspend/resume log.
type SleepWakeEntry struct {
	At   time.Time     `json:"at"`
	Kind SleepWakeKind `json:"kind"`
}

// SessionRecord represents one scheduled work session. Exactly one record is
// live at a time and it is owned exclusively by the engine; all fields are
// exported for gob/json encoding, but outside the engine the record must be
// treated as read-only.
type SessionRecord struct {
	// ID is the unique identifier of the session.
	ID string `json:"id"`
	// CreatedAt is the time the session was created.
	CreatedAt time.Time `json:"created_at"`
	// PlannedDuration is the fixed target length of the session.
	PlannedDuration time.Duration `json:"planned_duration"`
	// ActualStartTime is the reference point for elapsed-time computation.
	ActualStartTime time.Time `json:"actual_start_time"`
	// AccumulatedPaused is the total time spent paused, subtracted from elapsed.
	AccumulatedPaused time.Duration `json:"accumulated_paused"`
	// PauseStartedAt is set iff the session is currently paused.
	PauseStartedAt time.Time `json:"pause_started_at"`
	// PrecisionDrift is the signed correction accumulated each tick to
	// counter scheduler coalescing. Positive means the ticker runs behind
	// the wall clock.
	PrecisionDrift time.Duration `json:"precision_drift"`
	// ExecutionCount is the number of successful command invocations.
	ExecutionCount int64 `json:"execution_count"`
	// LastExecutionAt is the time of the last successful command invocation.
	LastExecutionAt time.Time `json:"last_execution_at"`
	// LastPrecisionCheck is the time of the last processed tick. On crash
	// recovery the gap since this timestamp is treated as an implicit pause.
	LastPrecisionCheck time.Time `json:"last_precision_check"`
	// State is the current lifecycle state.
	State SessionState `json:"state"`
	// LastError is the last recorded error classification, if any.
	LastError *SessionError `json:"last_error,omitempty"`
	// SleepWakeLog is the ordered, append-only suspend/resume event log.
	SleepWakeLog []SleepWakeEntry `json:"sleep_wake_log,omitempty"`
}

// Elapsed returns the drift-corrected elapsed session time at the given
// instant, clamped to [0, PlannedDuration]. While paused, the pause start
// acts as the reference instant so elapsed stays frozen.
func (r *SessionRecord) Elapsed(now time.Time) time.Duration {
	ref := now
	if !r.PauseStartedAt.IsZero() {
		ref = r.PauseStartedAt
	}
	elapsed := ref.Sub(r.ActualStartTime) - r.AccumulatedPaused - r.PrecisionDrift
	if elapsed < 0 {
		return 0
	}
	if elapsed > r.PlannedDuration {
		return r.PlannedDuration
	}
	return elapsed
}

// Progress returns elapsed/planned in [0, 1].
func (r *SessionRecord) Progress(now time.Time) float64 {
	if r.PlannedDuration <= 0 {
		return 0
	}
	return float64(r.Elapsed(now)) / float64(r.PlannedDuration)
}

// TimeRemaining returns the drift-corrected time left until completion.
func (r *SessionRecord) TimeRemaining(now time.Time) time.Duration {
	return r.PlannedDuration - r.Elapsed(now)
}

// appendSleepWake appends an entry to the suspend/resume log.
func (r *SessionRecord) appendSleepWake(at time.Time, kind SleepWakeKind) {
	r.SleepWakeLog = append(r.SleepWakeLog, SleepWakeEntry{At: at, Kind: kind})
}

// openPauseWindow marks the beginning of a pause interval.
func (r *SessionRecord) openPauseWindow(now time.Time) {
	r.PauseStartedAt = now
	r.State = StatePaused
}

// closePauseWindow folds an open pause interval into AccumulatedPaused.
// It is a no-op when no window is open.
func (r *SessionRecord) closePauseWindow(now time.Time) {
	if r.PauseStartedAt.IsZero() {
		return
	}
	d := now.Sub(r.PauseStartedAt)
	if d > 0 {
		r.AccumulatedPaused += d
	}
	r.PauseStartedAt = time.Time{}
}
