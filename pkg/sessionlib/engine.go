package sessionlib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransitionError reports an operation that is illegal in the current state.
// Illegal transitions never mutate the engine; callers surface the rejection
// to the user.
type TransitionError struct {
	From  SessionState
	Event string
}

// Error implements the error interface.
func (t *TransitionError) Error() string {
	return fmt.Sprintf("transition rejected: %q is not allowed from state %q", t.Event, t.From)
}

// EngineOptions holds the collaborators of the engine. Nil fields are
// replaced with defaults.
type EngineOptions struct {
	// Clock supplies wall-clock time. Defaults to SystemClock.
	Clock Clock
	// Runner executes the keepalive command. Defaults to an ExecRunner.
	Runner CommandRunner
	// Store persists session checkpoints. Defaults to an in-memory store.
	Store PersistenceStore
	// Handlers receive state/progress/error events.
	Handlers *Handlers
	// Logger receives engine diagnostics. Defaults to log.Default().
	Logger *log.Logger
	// DisableTickLoop prevents the engine from running its own ticker; the
	// embedder drives ticks through Tick. Used by tests.
	DisableTickLoop bool
	// AfterFunc schedules delayed retries. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) *time.Timer
}

// Engine is the session scheduling engine: the state machine governing the
// session lifecycle, the drift-corrected tick loop, the periodic execution
// and retry policy, and the crash-recovery contract.
//
// All state transitions and tick processing are serialized on one mutex;
// operations are safe to call from any goroutine. Observer callbacks run
// outside the lock.
type Engine struct {
	// collaborators, fixed at construction
	clock     Clock
	runner    CommandRunner
	store     PersistenceStore
	handlers  Handlers
	log       *log.Logger
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex
	settings SchedulerSettings
	record   *SessionRecord

	tracker         *DriftTracker
	driftBase       time.Duration
	execMark        time.Duration // session elapsed at last invocation launch
	retry           RetryState
	sleepPaused     bool
	lowPower        bool
	degradedFlagged bool
	inFlightID      string // session owning the outstanding invocation, "" when none
	recoverFrom     SessionState
	retryTimer      *time.Timer

	noTickLoop bool
	ticker     *time.Ticker
	tickStop   chan struct{}
	closed     bool

	pending []func()
}

// NewEngine creates an engine with the given settings and collaborators and
// performs crash recovery from the persistence store: a valid checkpoint of
// an active session is restored in the paused state, awaiting an explicit
// Resume; a corrupted checkpoint is discarded and surfaced once as a
// persistenceCorrupted error.
func NewEngine(settings SchedulerSettings, opts *EngineOptions) *Engine {
	if opts == nil {
		opts = &EngineOptions{}
	}
	e := &Engine{
		clock:      opts.Clock,
		runner:     opts.Runner,
		store:      opts.Store,
		log:        opts.Logger,
		afterFunc:  opts.AfterFunc,
		settings:   settings,
		noTickLoop: opts.DisableTickLoop,
	}
	if e.log == nil {
		e.log = log.Default()
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.runner == nil {
		e.runner = NewExecRunner(e.log)
	}
	if e.store == nil {
		e.store = NewMemStore()
	}
	if e.afterFunc == nil {
		e.afterFunc = time.AfterFunc
	}
	if opts.Handlers != nil {
		e.handlers = *opts.Handlers
	}
	e.handlers.setDefault(e.log)

	e.mu.Lock()
	defer e.flush()
	e.recoverLocked(e.clock.Now())
	return e
}

// queue registers a callback to run after the engine lock is released.
func (e *Engine) queue(f func()) { e.pending = append(e.pending, f) }

// flush releases the lock and runs queued observer callbacks.
func (e *Engine) flush() {
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

// stateLocked returns the effective engine state.
func (e *Engine) stateLocked() SessionState {
	if e.record == nil {
		return StateIdle
	}
	return e.record.State
}

// snapshotLocked builds the observer snapshot at the given instant.
func (e *Engine) snapshotLocked(now time.Time) StatusSnapshot {
	if e.record == nil {
		return StatusSnapshot{State: StateIdle, Accuracy: AccuracyHigh, At: now}
	}
	r := e.record
	return StatusSnapshot{
		SessionID:      r.ID,
		State:          r.State,
		Progress:       r.Progress(now),
		Elapsed:        r.Elapsed(now),
		TimeRemaining:  r.TimeRemaining(now),
		ExecutionCount: r.ExecutionCount,
		Accuracy:       Accuracy(r.PrecisionDrift),
		LastError:      r.LastError,
		At:             now,
	}
}

// emitStateLocked queues a state-change notification.
func (e *Engine) emitStateLocked(now time.Time) {
	snap := e.snapshotLocked(now)
	h := e.handlers.StateChangeHandler
	e.queue(func() { h(snap) })
}

// persistLocked checkpoints the live record. Persistence failures are logged
// but never halt the session.
func (e *Engine) persistLocked(now time.Time) {
	if e.record == nil {
		return
	}
	if err := e.store.Save(e.record, now); err != nil {
		e.log.Printf("warning: checkpoint save failed: %v", err)
	}
}

// resetSegmentLocked starts a fresh drift-tracking segment at now, folding
// the drift accumulated so far into the base term.
func (e *Engine) resetSegmentLocked(now time.Time) {
	interval := e.settings.effectiveTickInterval(e.lowPower)
	e.tracker = NewDriftTracker(now, interval)
	if e.record != nil {
		e.driftBase = e.record.PrecisionDrift
	} else {
		e.driftBase = 0
	}
}

// recoverLocked restores the last checkpoint at engine startup.
func (e *Engine) recoverLocked(now time.Time) {
	cp, err := e.store.Load()
	switch {
	case err == nil:
	case errors.Is(err, ErrNoCheckpoint):
		return
	default:
		// Corrupted (or unreadable) persisted state is discarded; the
		// engine starts fresh at idle and surfaces the condition once.
		_ = e.store.Clear()
		serr := NewSessionError(KindPersistenceCorrupted, err)
		h := e.handlers.ErrorHandler
		e.queue(func() { h("", serr) })
		return
	}

	rec := cp.Record
	if rec.State.Active() {
		// The process was not running between the last checkpoint and now;
		// that gap is an implicit pause. The session is restored paused and
		// never auto-resumes.
		if !rec.PauseStartedAt.IsZero() {
			rec.closePauseWindow(now)
		} else if gap := now.Sub(rec.LastPrecisionCheck); gap > 0 {
			rec.AccumulatedPaused += gap
		}
		rec.openPauseWindow(now)
		rec.LastPrecisionCheck = now
		e.record = &rec
		e.persistLocked(now)
		e.emitStateLocked(now)
		return
	}
	// Terminal records are kept as resting state pending user action.
	e.record = &rec
}

// Start begins a new session. Starting while a session is already running is
// idempotent and returns the existing session's snapshot. Starting while
// paused is rejected; Resume must be used instead.
func (e *Engine) Start() (StatusSnapshot, error) {
	e.mu.Lock()
	defer e.flush()

	now := e.clock.Now()
	if e.closed {
		return e.snapshotLocked(now), ErrEngineClosed
	}
	switch st := e.stateLocked(); st {
	case StateRunning, StateRecovering, StateBackgrounded:
		return e.snapshotLocked(now), nil
	case StatePaused:
		return e.snapshotLocked(now), &TransitionError{From: st, Event: "start"}
	}
	if err := e.settings.Validate(); err != nil {
		return e.snapshotLocked(now), fmt.Errorf("%s: %w", KindConfigurationInvalid, err)
	}

	e.record = &SessionRecord{
		ID:                 uuid.NewString(),
		CreatedAt:          now,
		PlannedDuration:    e.settings.SessionDuration,
		ActualStartTime:    now,
		LastPrecisionCheck: now,
		State:              StateRunning,
	}
	e.retry.reset()
	e.execMark = 0
	e.sleepPaused = false
	e.degradedFlagged = false
	e.resetSegmentLocked(now)
	e.persistLocked(now)
	e.startTickLoopLocked()
	// First keepalive invocation fires immediately; subsequent ones follow
	// the configured cadence.
	e.launchInvocationLocked(now)
	e.emitStateLocked(now)
	return e.snapshotLocked(now), nil
}

// Pause freezes the session clock. Legal from running and backgrounded.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.flush()

	st := e.stateLocked()
	if st != StateRunning && st != StateBackgrounded {
		return &TransitionError{From: st, Event: "pause"}
	}
	now := e.clock.Now()
	e.record.openPauseWindow(now)
	e.sleepPaused = false
	e.driftBase = e.record.PrecisionDrift
	e.persistLocked(now)
	e.emitStateLocked(now)
	return nil
}

// Resume continues a paused or recovering session.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.flush()

	st := e.stateLocked()
	if st != StatePaused && st != StateRecovering {
		return &TransitionError{From: st, Event: "resume"}
	}
	now := e.clock.Now()
	e.cancelRetryLocked()
	e.record.closePauseWindow(now)
	e.record.State = StateRunning
	e.record.LastPrecisionCheck = now
	e.sleepPaused = false
	e.resetSegmentLocked(now)
	e.persistLocked(now)
	e.startTickLoopLocked()
	e.emitStateLocked(now)
	return nil
}

// Stop ends the live session and clears its record. Legal from running,
// paused, recovering and backgrounded.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.flush()

	st := e.stateLocked()
	if !st.Active() {
		return &TransitionError{From: st, Event: "stop"}
	}
	e.clearSessionLocked()
	e.emitStateLocked(e.clock.Now())
	return nil
}

// Reset discards any session record and returns the engine to idle. Always
// legal.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.flush()

	e.clearSessionLocked()
	e.emitStateLocked(e.clock.Now())
	return nil
}

// clearSessionLocked drops the live record, cancels outstanding work and
// wipes the checkpoint. Results of in-flight invocations are discarded later
// by session id mismatch.
func (e *Engine) clearSessionLocked() {
	e.cancelRetryLocked()
	e.stopTickLoopLocked()
	e.record = nil
	e.retry.reset()
	e.sleepPaused = false
	e.degradedFlagged = false
	if err := e.store.Clear(); err != nil {
		e.log.Printf("warning: checkpoint clear failed: %v", err)
	}
}

// Retry is the user-initiated recovery from the error state. The time spent
// in error is folded into the pause accounting, mirroring crash recovery.
func (e *Engine) Retry() error {
	e.mu.Lock()
	defer e.flush()

	st := e.stateLocked()
	if st != StateError {
		return &TransitionError{From: st, Event: "retry"}
	}
	now := e.clock.Now()
	if gap := now.Sub(e.record.LastPrecisionCheck); gap > 0 {
		e.record.AccumulatedPaused += gap
	}
	e.record.LastPrecisionCheck = now
	e.record.LastError = nil
	e.record.State = StateRunning
	e.retry.reset()
	e.resetSegmentLocked(now)
	e.persistLocked(now)
	e.startTickLoopLocked()
	e.launchInvocationLocked(now)
	e.emitStateLocked(now)
	return nil
}

// Background marks the host as having lost foreground. The session clock
// keeps advancing and the keepalive cadence keeps firing; failures in this
// state surface as backgroundTaskFailed.
func (e *Engine) Background() error {
	e.mu.Lock()
	defer e.flush()

	st := e.stateLocked()
	if st != StateRunning {
		return &TransitionError{From: st, Event: "background"}
	}
	now := e.clock.Now()
	e.record.State = StateBackgrounded
	e.persistLocked(now)
	e.emitStateLocked(now)
	return nil
}

// Foreground returns a backgrounded session to running.
func (e *Engine) Foreground() error {
	e.mu.Lock()
	defer e.flush()

	st := e.stateLocked()
	if st != StateBackgrounded {
		return &TransitionError{From: st, Event: "foreground"}
	}
	now := e.clock.Now()
	e.record.State = StateRunning
	e.persistLocked(now)
	e.emitStateLocked(now)
	return nil
}

// UpdateSettings replaces the settings snapshot. Invalid settings are
// rejected without mutating the current configuration; accepted settings
// take effect for subsequent ticks only.
func (e *Engine) UpdateSettings(s SchedulerSettings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%s: %w", KindConfigurationInvalid, err)
	}
	e.mu.Lock()
	defer e.flush()

	e.settings = s
	now := e.clock.Now()
	if e.record != nil && e.record.State.Active() {
		e.resetSegmentLocked(now)
		e.resetTickerLocked()
	}
	return nil
}

// Settings returns the current settings snapshot.
func (e *Engine) Settings() SchedulerSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetLowPower toggles the adaptive tick widening. The drift tracker restarts
// so the wider interval is not misread as drift.
func (e *Engine) SetLowPower(on bool) {
	e.mu.Lock()
	defer e.flush()

	if e.lowPower == on {
		return
	}
	e.lowPower = on
	now := e.clock.Now()
	if e.record != nil && e.record.State.Active() {
		e.resetSegmentLocked(now)
		e.resetTickerLocked()
	}
}

// OnSleep handles the host's suspend signal: a running session is paused
// immediately and a sleep event is appended to the log.
func (e *Engine) OnSleep() {
	e.mu.Lock()
	defer e.flush()

	st := e.stateLocked()
	if st != StateRunning && st != StateBackgrounded {
		return
	}
	now := e.clock.Now()
	e.record.appendSleepWake(now, SleepEvent)
	e.record.openPauseWindow(now)
	e.sleepPaused = true
	e.driftBase = e.record.PrecisionDrift
	e.persistLocked(now)
	e.emitStateLocked(now)
}

// OnWake handles the host's resume signal: the pause window opened by
// OnSleep is closed and the session returns to running automatically. This
// is the one automatic resume; a user-initiated pause stays paused.
func (e *Engine) OnWake() {
	e.mu.Lock()
	defer e.flush()

	if !e.sleepPaused || e.stateLocked() != StatePaused {
		return
	}
	now := e.clock.Now()
	e.record.closePauseWindow(now)
	e.record.appendSleepWake(now, WakeEvent)
	e.record.State = StateRunning
	e.record.LastPrecisionCheck = now
	e.sleepPaused = false
	e.resetSegmentLocked(now)
	e.persistLocked(now)
	e.emitStateLocked(now)
}

// Status returns the current observer snapshot.
func (e *Engine) Status() StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock.Now())
}

// Record returns a copy of the live session record, or false when idle.
func (e *Engine) Record() (SessionRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.record == nil {
		return SessionRecord{}, false
	}
	return *e.record, true
}

// Close stops the tick loop and writes a final checkpoint.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.flush()

	if e.closed {
		return nil
	}
	e.closed = true
	e.cancelRetryLocked()
	e.stopTickLoopLocked()
	e.persistLocked(e.clock.Now())
	return nil
}

// ---- tick loop ----

// startTickLoopLocked launches the cooperative tick loop unless disabled or
// already running.
func (e *Engine) startTickLoopLocked() {
	if e.noTickLoop || e.tickStop != nil || e.closed {
		return
	}
	stop := make(chan struct{})
	ticker := time.NewTicker(e.settings.effectiveTickInterval(e.lowPower))
	e.tickStop = stop
	e.ticker = ticker
	safeGo(e.log, nil, "tick-loop", nil, func() {
		for {
			select {
			case <-stop:
				ticker.Stop()
				return
			case <-ticker.C:
				e.Tick()
			}
		}
	})
}

// stopTickLoopLocked signals the tick loop to exit.
func (e *Engine) stopTickLoopLocked() {
	if e.tickStop != nil {
		close(e.tickStop)
		e.tickStop = nil
		e.ticker = nil
	}
}

// resetTickerLocked applies the current effective tick interval to a running
// ticker.
func (e *Engine) resetTickerLocked() {
	if e.ticker != nil {
		e.ticker.Reset(e.settings.effectiveTickInterval(e.lowPower))
	}
}

// Tick processes one scheduling tick at the current clock instant. The
// internal loop calls this periodically; tests drive it directly.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.flush()
	e.tickLocked(e.clock.Now())
}

func (e *Engine) tickLocked(now time.Time) {
	if e.closed || e.record == nil {
		return
	}
	rec := e.record
	if rec.State != StateRunning && rec.State != StateBackgrounded {
		return
	}

	// A wall-clock jump far beyond the tick interval means the host was
	// suspended: there is no portable suspend signal, so the gap itself is
	// the detection. The slept time becomes an implicit pause and the
	// session resumes in place.
	if gap := now.Sub(rec.LastPrecisionCheck); gap >= e.suspendGapLocked() {
		rec.appendSleepWake(rec.LastPrecisionCheck, SleepEvent)
		rec.appendSleepWake(now, WakeEvent)
		rec.AccumulatedPaused += gap
		rec.LastPrecisionCheck = now
		e.resetSegmentLocked(now)
		e.persistLocked(now)
		e.emitStateLocked(now)
		return
	}

	// Drift accounting: compare wall-clock elapsed with the elapsed implied
	// by the tick count, fold the difference into the record.
	drift := e.tracker.Tick(now)
	rec.PrecisionDrift = e.driftBase + drift
	rec.LastPrecisionCheck = now

	if Accuracy(rec.PrecisionDrift) == AccuracyDegraded && !e.degradedFlagged {
		e.degradedFlagged = true
		serr := NewSessionError(KindTimingPrecisionLost,
			fmt.Errorf("accumulated drift %s exceeds %s", rec.PrecisionDrift, acceptableDrift))
		rec.LastError = serr
		id := rec.ID
		h := e.handlers.ErrorHandler
		e.queue(func() { h(id, serr) })
	}

	elapsed := rec.Elapsed(now)
	if elapsed >= rec.PlannedDuration {
		e.completeLocked(now)
		return
	}

	// The cadence keeps firing while backgrounded: the session is still a
	// running variant, only the observer surface differs.
	if e.inFlightID == "" && elapsed-e.execMark >= e.settings.ExecInterval {
		e.launchInvocationLocked(now)
	}

	e.persistLocked(now)
	snap := e.snapshotLocked(now)
	h := e.handlers.ProgressHandler
	e.queue(func() { h(snap) })
}

// minSuspendGap is the floor for the suspension-detection threshold.
const minSuspendGap = 30 * time.Second

// suspendGapLocked returns the wall-clock jump treated as a host suspension
// rather than scheduler drift.
func (e *Engine) suspendGapLocked() time.Duration {
	gap := 3 * e.settings.effectiveTickInterval(e.lowPower)
	if gap < minSuspendGap {
		gap = minSuspendGap
	}
	return gap
}

// completeLocked finishes the session when progress reaches 1.0.
func (e *Engine) completeLocked(now time.Time) {
	rec := e.record
	rec.State = StateCompleted
	rec.LastPrecisionCheck = now
	e.cancelRetryLocked()
	e.stopTickLoopLocked()
	e.persistLocked(now)

	id := rec.ID
	hc := e.handlers.SessionCompleteHandler
	e.queue(func() { hc(id) })
	e.emitStateLocked(now)
	if e.settings.AutoRestart {
		e.queue(func() { _, _ = e.Start() })
	}
}

// ---- periodic execution & retry ----

// launchInvocationLocked starts one asynchronous command invocation tagged
// with the live session id. A slow or hung command never stalls ticks; its
// completion is delivered back into the serialized context.
func (e *Engine) launchInvocationLocked(now time.Time) {
	rec := e.record
	e.inFlightID = rec.ID
	e.execMark = rec.Elapsed(now)

	id := rec.ID
	spec := e.settings.Command
	timeout := e.settings.CommandTimeout
	runner := e.runner
	safeGo(e.log, nil, "invoke", nil, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := runner.Invoke(ctx, spec)
		e.finishInvocation(id, err)
	})
}

// finishInvocation delivers an invocation result into the serialized
// context. Results tagged with a session id that no longer matches the live
// record are discarded.
func (e *Engine) finishInvocation(id string, err error) {
	e.mu.Lock()
	defer e.flush()

	rec := e.record
	if rec == nil || rec.ID != id {
		// A stale invocation from a stopped or replaced session may only
		// clear its own marker, never the live session's.
		if e.inFlightID == id {
			e.inFlightID = ""
		}
		return
	}
	e.inFlightID = ""
	now := e.clock.Now()

	if err == nil {
		rec.ExecutionCount++
		rec.LastExecutionAt = now
		rec.LastError = nil
		e.retry.reset()
		if rec.State == StateRecovering {
			// Recovery hands the session back to the state it failed in.
			if e.recoverFrom == StateBackgrounded {
				rec.State = StateBackgrounded
			} else {
				rec.State = StateRunning
			}
			rec.LastPrecisionCheck = now
			e.resetSegmentLocked(now)
			e.emitStateLocked(now)
		}
		e.persistLocked(now)
		count := rec.ExecutionCount
		h := e.handlers.ExecutionHandler
		e.queue(func() { h(id, count) })
		return
	}

	if errors.Is(err, context.Canceled) {
		return // invocation was deliberately abandoned
	}

	kind := ClassifyInvokeError(err)
	if rec.State == StateBackgrounded ||
		(rec.State == StateRecovering && e.recoverFrom == StateBackgrounded) {
		kind = KindBackgroundTaskFailed
	}
	serr := NewSessionError(kind, err)
	e.retry.Attempts++
	e.retry.LastAttempt = now
	serr.Attempts = e.retry.Attempts
	e.retry.LastError = serr
	rec.LastError = serr

	eh := e.handlers.ErrorHandler
	e.queue(func() { eh(id, serr) })

	// A failure that lands after the user paused the session, or after it
	// reached a resting state, is recorded but drives no transition.
	if rec.State == StatePaused || rec.State.Terminal() {
		e.persistLocked(now)
		return
	}

	budget := retryBudget(kind, e.settings)
	if kind.AutoRecoverable() && e.retry.Attempts < budget {
		if rec.State != StateRecovering {
			e.recoverFrom = rec.State
		}
		rec.State = StateRecovering
		delay := retryDelayFor(kind, e.settings, e.retry.Attempts)
		e.retry.TotalDelayed += delay
		e.retryTimer = e.afterFunc(delay, func() { e.retryInvoke(id) })
		e.persistLocked(now)
		e.emitStateLocked(now)
		return
	}

	// Either the kind is not auto-recoverable or the budget is exhausted.
	if kind.AutoRecoverable() {
		failed := &SessionError{
			Kind:       KindRecoveryFailed,
			Message:    fmt.Sprintf("automatic recovery failed after %d attempts: %v", e.retry.Attempts, err),
			Attempts:   e.retry.Attempts,
			Suggestion: KindRecoveryFailed.Suggestion(),
		}
		rec.LastError = failed
		e.queue(func() { eh(id, failed) })
	}
	rec.State = StateError
	rec.LastPrecisionCheck = now
	e.cancelRetryLocked()
	e.stopTickLoopLocked()
	e.persistLocked(now)
	e.emitStateLocked(now)
}

// retryInvoke fires a scheduled automatic retry.
func (e *Engine) retryInvoke(id string) {
	e.mu.Lock()
	defer e.flush()

	rec := e.record
	if rec == nil || rec.ID != id || rec.State != StateRecovering || e.inFlightID != "" {
		return
	}
	e.launchInvocationLocked(e.clock.Now())
}

// cancelRetryLocked stops a pending automatic retry.
func (e *Engine) cancelRetryLocked() {
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}
