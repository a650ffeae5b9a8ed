package sessionlib

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// eventRecorder captures handler callbacks for assertions.
type eventRecorder struct {
	mu        sync.Mutex
	states    []StatusSnapshot
	progress  []StatusSnapshot
	execs     []int64
	errs      []*SessionError
	completes []string
}

func (r *eventRecorder) handlers() *Handlers {
	return &Handlers{
		StateChangeHandler: func(snap StatusSnapshot) {
			r.mu.Lock()
			r.states = append(r.states, snap)
			r.mu.Unlock()
		},
		ProgressHandler: func(snap StatusSnapshot) {
			r.mu.Lock()
			r.progress = append(r.progress, snap)
			r.mu.Unlock()
		},
		ExecutionHandler: func(sessionID string, count int64) {
			r.mu.Lock()
			r.execs = append(r.execs, count)
			r.mu.Unlock()
		},
		ErrorHandler: func(sessionID string, serr *SessionError) {
			r.mu.Lock()
			r.errs = append(r.errs, serr)
			r.mu.Unlock()
		},
		SessionCompleteHandler: func(sessionID string) {
			r.mu.Lock()
			r.completes = append(r.completes, sessionID)
			r.mu.Unlock()
		},
	}
}

func (r *eventRecorder) errorKinds() []ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ErrorKind, 0, len(r.errs))
	for _, e := range r.errs {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *eventRecorder) completedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completes...)
}

// scriptRunner pops one scripted result per invocation; an exhausted script
// means success.
type scriptRunner struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (r *scriptRunner) Invoke(ctx context.Context, spec CommandSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func (r *scriptRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeTimers captures scheduled retry callbacks so tests fire them
// synchronously.
type fakeTimers struct {
	mu     sync.Mutex
	fns    []func()
	delays []time.Duration
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) *time.Timer {
	f.mu.Lock()
	f.fns = append(f.fns, fn)
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	return time.NewTimer(time.Hour)
}

func (f *fakeTimers) scheduled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

func (f *fakeTimers) fire(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	if len(f.fns) == 0 {
		f.mu.Unlock()
		t.Fatal("no retry scheduled")
	}
	fn := f.fns[0]
	f.fns = f.fns[1:]
	f.delays = f.delays[1:]
	f.mu.Unlock()
	fn()
}

type engineFixture struct {
	engine *Engine
	clock  *ManualClock
	runner *scriptRunner
	events *eventRecorder
	store  *MemStore
	timers *fakeTimers

	settings SchedulerSettings
}

func testEngineSettings() SchedulerSettings {
	s := DefaultSettings()
	s.SessionDuration = time.Hour
	s.TickInterval = time.Minute
	s.ExecInterval = 10 * time.Minute
	s.RetryDelay = time.Second
	s.Command = CommandSpec{Path: "/bin/true"}
	return s
}

func newFixture(t *testing.T, s SchedulerSettings) *engineFixture {
	t.Helper()
	f := &engineFixture{
		clock:    NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		runner:   &scriptRunner{},
		events:   &eventRecorder{},
		store:    NewMemStore(),
		timers:   &fakeTimers{},
		settings: s,
	}
	f.engine = NewEngine(s, &EngineOptions{
		Clock:           f.clock,
		Runner:          f.runner,
		Store:           f.store,
		Handlers:        f.events.handlers(),
		Logger:          log.New(io.Discard, "", 0),
		DisableTickLoop: true,
		AfterFunc:       f.timers.AfterFunc,
	})
	t.Cleanup(func() { _ = f.engine.Close() })
	return f
}

// tickN advances the clock by the tick interval and processes a tick, n
// times.
func (f *engineFixture) tickN(n int) {
	for i := 0; i < n; i++ {
		f.clock.Advance(f.settings.TickInterval)
		f.engine.Tick()
	}
}

// waitUntil polls for an asynchronous invocation result to land.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *engineFixture) waitState(t *testing.T, want SessionState) {
	t.Helper()
	waitUntil(t, "state "+string(want), func() bool {
		return f.engine.Status().State == want
	})
}

func (f *engineFixture) waitExecCount(t *testing.T, want int64) {
	t.Helper()
	waitUntil(t, "execution count", func() bool {
		return f.engine.Status().ExecutionCount == want
	})
}

// ---- lifecycle ----

func TestStartCreatesRunningSession(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	snap, err := f.engine.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != StateRunning {
		t.Errorf("state = %v, want running", snap.State)
	}
	if snap.SessionID == "" {
		t.Error("no session id assigned")
	}
	if snap.Progress != 0 {
		t.Errorf("initial progress = %v, want 0", snap.Progress)
	}

	// The first keepalive invocation fires immediately.
	f.waitExecCount(t, 1)

	// A checkpoint exists from the moment the session starts.
	cp, err := f.store.Load()
	if err != nil {
		t.Fatalf("no checkpoint after start: %v", err)
	}
	if cp.Record.ID != snap.SessionID {
		t.Errorf("checkpoint id = %s, want %s", cp.Record.ID, snap.SessionID)
	}
}

func TestStartIdempotentWhileRunning(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	first, err := f.engine.Start()
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.engine.Start()
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("second start replaced the session: %s vs %s", second.SessionID, first.SessionID)
	}
}

func TestStartWhilePausedRejected(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Pause(); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.Start()
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("start while paused = %v, want TransitionError", err)
	}
	if terr.From != StatePaused || terr.Event != "start" {
		t.Errorf("transition error = %+v", terr)
	}
	// The paused session is untouched.
	if st := f.engine.Status().State; st != StatePaused {
		t.Errorf("state after rejected start = %v", st)
	}
}

func TestStartRequiresCommand(t *testing.T) {
	s := testEngineSettings()
	s.Command = CommandSpec{}
	f := newFixture(t, s)

	if _, err := f.engine.Start(); !errors.Is(err, ErrSettingsCommand) {
		t.Errorf("start without command = %v, want ErrSettingsCommand", err)
	}
	if st := f.engine.Status().State; st != StateIdle {
		t.Errorf("state after rejected start = %v, want idle", st)
	}
}

func TestIllegalTransitionsFromIdle(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	for _, op := range []struct {
		name string
		call func() error
	}{
		{"pause", f.engine.Pause},
		{"resume", f.engine.Resume},
		{"stop", f.engine.Stop},
		{"retry", f.engine.Retry},
		{"background", f.engine.Background},
		{"foreground", f.engine.Foreground},
	} {
		var terr *TransitionError
		if err := op.call(); !errors.As(err, &terr) {
			t.Errorf("%s from idle = %v, want TransitionError", op.name, err)
		}
	}

	// Reset is legal from any state, including idle.
	if err := f.engine.Reset(); err != nil {
		t.Errorf("reset from idle: %v", err)
	}
}

func TestPauseResumeAccounting(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitExecCount(t, 1)
	f.tickN(10)

	if got := f.engine.Status().Elapsed; got != 10*time.Minute {
		t.Fatalf("elapsed before pause = %v, want 10m", got)
	}
	if err := f.engine.Pause(); err != nil {
		t.Fatal(err)
	}

	// Half an hour passes while paused; elapsed must not move.
	f.clock.Advance(30 * time.Minute)
	f.engine.Tick() // ticks are no-ops while paused
	if got := f.engine.Status().Elapsed; got != 10*time.Minute {
		t.Fatalf("elapsed while paused = %v, want 10m", got)
	}

	if err := f.engine.Resume(); err != nil {
		t.Fatal(err)
	}
	f.tickN(10)

	st := f.engine.Status()
	if st.Elapsed != 20*time.Minute {
		t.Errorf("elapsed after resume = %v, want 20m", st.Elapsed)
	}
	rec, ok := f.engine.Record()
	if !ok {
		t.Fatal("no live record")
	}
	if rec.AccumulatedPaused != 30*time.Minute {
		t.Errorf("accumulated paused = %v, want 30m", rec.AccumulatedPaused)
	}
}

func TestStopClearsSessionAndCheckpoint(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Stop(); err != nil {
		t.Fatal(err)
	}
	if st := f.engine.Status().State; st != StateIdle {
		t.Errorf("state after stop = %v, want idle", st)
	}
	if _, err := f.store.Load(); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("checkpoint survives stop: %v", err)
	}
}

func TestCompletionAtPlannedDuration(t *testing.T) {
	s := testEngineSettings()
	s.SessionDuration = 5 * time.Minute
	f := newFixture(t, s)

	snap, err := f.engine.Start()
	if err != nil {
		t.Fatal(err)
	}
	f.waitExecCount(t, 1)
	f.tickN(5)

	st := f.engine.Status()
	if st.State != StateCompleted {
		t.Fatalf("state = %v, want completed", st.State)
	}
	if st.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0", st.Progress)
	}
	if ids := f.events.completedIDs(); len(ids) != 1 || ids[0] != snap.SessionID {
		t.Errorf("complete handler got %v, want [%s]", ids, snap.SessionID)
	}

	// Further ticks are inert in a resting state.
	f.tickN(3)
	if st := f.engine.Status().State; st != StateCompleted {
		t.Errorf("state after extra ticks = %v", st)
	}
}

func TestAutoRestartAfterCompletion(t *testing.T) {
	s := testEngineSettings()
	s.SessionDuration = 3 * time.Minute
	s.AutoRestart = true
	f := newFixture(t, s)

	first, err := f.engine.Start()
	if err != nil {
		t.Fatal(err)
	}
	f.tickN(3)

	f.waitState(t, StateRunning)
	second := f.engine.Status()
	if second.SessionID == first.SessionID {
		t.Error("auto-restart reused the completed session id")
	}
	if second.Progress != 0 {
		t.Errorf("restarted progress = %v, want 0", second.Progress)
	}
}

// ---- periodic execution & retry ----

func TestExecCadence(t *testing.T) {
	s := testEngineSettings()
	s.ExecInterval = 3 * time.Minute
	f := newFixture(t, s)

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitExecCount(t, 1) // immediate invocation at start

	f.tickN(2)
	if got := f.runner.callCount(); got != 1 {
		t.Fatalf("invocations before cadence boundary = %d, want 1", got)
	}
	f.tickN(1) // elapsed reaches 3m
	f.waitExecCount(t, 2)

	f.tickN(3) // elapsed reaches 6m
	f.waitExecCount(t, 3)
}

func TestInvocationFailureSchedulesRetry(t *testing.T) {
	f := newFixture(t, testEngineSettings())
	f.runner.errs = []error{errors.New("exit status 1")}

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, StateRecovering)

	if got := f.timers.scheduled(); got != 1 {
		t.Fatalf("scheduled retries = %d, want 1", got)
	}
	st := f.engine.Status()
	if st.LastError == nil || st.LastError.Kind != KindCommandExecutionFailed {
		t.Fatalf("last error = %+v", st.LastError)
	}
	if st.LastError.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", st.LastError.Attempts)
	}

	// The scheduled retry succeeds and the session returns to running.
	f.timers.fire(t)
	f.waitState(t, StateRunning)
	f.waitExecCount(t, 1)
	if st := f.engine.Status(); st.LastError != nil {
		t.Errorf("last error after recovery = %+v", st.LastError)
	}
}

func TestRetryBudgetExhaustedEntersError(t *testing.T) {
	f := newFixture(t, testEngineSettings())
	f.runner.errs = []error{
		errors.New("exit status 1"),
		errors.New("exit status 1"),
		errors.New("exit status 1"),
	}

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, StateRecovering)
	f.timers.fire(t)
	f.waitUntilAttempts(t, 2)
	f.timers.fire(t)
	f.waitState(t, StateError)

	st := f.engine.Status()
	if st.LastError == nil || st.LastError.Kind != KindRecoveryFailed {
		t.Fatalf("last error = %+v, want recovery_failed", st.LastError)
	}
	if st.LastError.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", st.LastError.Attempts)
	}
	if got := f.timers.scheduled(); got != 0 {
		t.Errorf("retries still scheduled in error state: %d", got)
	}

	// The error state is inert until the user acts.
	f.tickN(2)
	if st := f.engine.Status().State; st != StateError {
		t.Errorf("state after ticks in error = %v", st)
	}
}

func (f *engineFixture) waitUntilAttempts(t *testing.T, want int) {
	t.Helper()
	waitUntil(t, "retry attempts", func() bool {
		st := f.engine.Status()
		return st.LastError != nil && st.LastError.Attempts >= want
	})
}

func TestManualRetryFromError(t *testing.T) {
	f := newFixture(t, testEngineSettings())
	f.runner.errs = []error{errors.New(`exec: "claude": executable file not found in $PATH`)}

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, StateError)

	// Time spent in error is folded into pause accounting.
	f.clock.Advance(20 * time.Minute)
	if err := f.engine.Retry(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	f.waitState(t, StateRunning)
	f.waitExecCount(t, 1)

	rec, ok := f.engine.Record()
	if !ok {
		t.Fatal("no live record")
	}
	if rec.AccumulatedPaused < 20*time.Minute {
		t.Errorf("error gap not folded into pause: %v", rec.AccumulatedPaused)
	}
	if rec.LastError != nil {
		t.Errorf("last error survived retry: %+v", rec.LastError)
	}
}

func TestCriticalFailureSkipsAutoRetry(t *testing.T) {
	f := newFixture(t, testEngineSettings())
	f.runner.errs = []error{errors.New("fork/exec /usr/local/bin/claude: permission denied")}

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitState(t, StateError)

	if got := f.timers.scheduled(); got != 0 {
		t.Errorf("critical failure scheduled %d retries, want 0", got)
	}
	st := f.engine.Status()
	if st.LastError == nil || st.LastError.Kind != KindSystemResourceUnavailable {
		t.Errorf("last error = %+v", st.LastError)
	}
}

// blockingRunner holds an invocation until released.
type blockingRunner struct {
	started chan struct{}
	release chan error
}

func (r *blockingRunner) Invoke(ctx context.Context, spec CommandSpec) error {
	r.started <- struct{}{}
	select {
	case err := <-r.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	br := &blockingRunner{started: make(chan struct{}, 1), release: make(chan error, 1)}
	f := newFixture(t, testEngineSettings())
	f.engine.runner = br

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	<-br.started

	if err := f.engine.Stop(); err != nil {
		t.Fatal(err)
	}
	// The stale result lands after the session is gone; it must be dropped.
	br.release <- nil
	time.Sleep(10 * time.Millisecond)

	if st := f.engine.Status(); st.State != StateIdle || st.ExecutionCount != 0 {
		t.Errorf("stale result mutated engine: %+v", st)
	}
}

// gateRunner blocks every invocation behind its own release channel.
type gateRunner struct {
	started chan chan error
}

func (r *gateRunner) Invoke(ctx context.Context, spec CommandSpec) error {
	release := make(chan error, 1)
	r.started <- release
	select {
	case err := <-release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStaleResultKeepsNewSessionInvocationExclusive(t *testing.T) {
	gr := &gateRunner{started: make(chan chan error, 2)}
	f := newFixture(t, testEngineSettings())
	f.engine.runner = gr

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	releaseOld := <-gr.started

	if err := f.engine.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	releaseNew := <-gr.started

	// The replaced session's result lands while the new session's first
	// invocation is still running; it must not free the cadence slot.
	releaseOld <- nil
	time.Sleep(10 * time.Millisecond)

	f.tickN(11)
	time.Sleep(10 * time.Millisecond)
	select {
	case rel := <-gr.started:
		rel <- nil
		t.Fatal("second invocation launched while the first was still running")
	default:
	}

	releaseNew <- nil
	f.waitExecCount(t, 1)

	// With the slot free again the cadence resumes on the next tick.
	f.tickN(1)
	select {
	case rel := <-gr.started:
		rel <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("cadence did not resume after the invocation finished")
	}
	f.waitExecCount(t, 2)
}

// ---- sleep / wake ----

func TestSleepPausesAndWakeResumes(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.tickN(5)

	f.engine.OnSleep()
	if st := f.engine.Status().State; st != StatePaused {
		t.Fatalf("state after sleep = %v, want paused", st)
	}

	f.clock.Advance(45 * time.Minute)
	f.engine.OnWake()
	if st := f.engine.Status().State; st != StateRunning {
		t.Fatalf("state after wake = %v, want running", st)
	}

	rec, ok := f.engine.Record()
	if !ok {
		t.Fatal("no live record")
	}
	if rec.AccumulatedPaused != 45*time.Minute {
		t.Errorf("accumulated paused = %v, want 45m", rec.AccumulatedPaused)
	}
	if len(rec.SleepWakeLog) != 2 {
		t.Fatalf("sleep/wake log = %+v", rec.SleepWakeLog)
	}
	if rec.SleepWakeLog[0].Kind != SleepEvent || rec.SleepWakeLog[1].Kind != WakeEvent {
		t.Errorf("sleep/wake order wrong: %+v", rec.SleepWakeLog)
	}

	// Session time excludes the suspension.
	if got := f.engine.Status().Elapsed; got != 5*time.Minute {
		t.Errorf("elapsed after wake = %v, want 5m", got)
	}
}

func TestClockJumpDetectedAsSuspension(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitExecCount(t, 1)
	f.tickN(5)

	// The host slept for 2h: the next tick observes the jump and folds it
	// into pause accounting instead of drift.
	f.clock.Advance(2 * time.Hour)
	f.engine.Tick()

	st := f.engine.Status()
	if st.State != StateRunning {
		t.Fatalf("state after detected suspension = %v, want running", st.State)
	}
	if st.Elapsed != 5*time.Minute {
		t.Errorf("elapsed after suspension = %v, want 5m", st.Elapsed)
	}
	if st.Accuracy != AccuracyHigh {
		t.Errorf("suspension misread as drift: accuracy %v", st.Accuracy)
	}

	rec, _ := f.engine.Record()
	if rec.AccumulatedPaused != 2*time.Hour {
		t.Errorf("accumulated paused = %v, want 2h", rec.AccumulatedPaused)
	}
	if len(rec.SleepWakeLog) != 2 {
		t.Fatalf("sleep/wake log = %+v", rec.SleepWakeLog)
	}

	// Ticking resumes normally afterwards.
	f.tickN(3)
	if got := f.engine.Status().Elapsed; got != 8*time.Minute {
		t.Errorf("elapsed after recovery ticks = %v, want 8m", got)
	}
}

func TestWakeDoesNotResumeManualPause(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Pause(); err != nil {
		t.Fatal(err)
	}
	f.engine.OnWake()
	if st := f.engine.Status().State; st != StatePaused {
		t.Errorf("wake resumed a manual pause: %v", st)
	}
}

func TestSleepWhilePausedIsIgnored(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Pause(); err != nil {
		t.Fatal(err)
	}
	f.engine.OnSleep()

	rec, _ := f.engine.Record()
	if len(rec.SleepWakeLog) != 0 {
		t.Errorf("sleep while paused logged: %+v", rec.SleepWakeLog)
	}
}

// ---- drift ----

func TestDriftCorrectionAndWarning(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitExecCount(t, 1)

	// Every tick fires 6s late: after two ticks accumulated drift is 12s,
	// past the degraded threshold.
	for i := 0; i < 3; i++ {
		f.clock.Advance(f.settings.TickInterval + 6*time.Second)
		f.engine.Tick()
	}

	st := f.engine.Status()
	if st.State != StateRunning {
		t.Fatalf("degraded timing halted the session: %v", st.State)
	}
	if st.Accuracy != AccuracyDegraded {
		t.Errorf("accuracy = %v, want degraded", st.Accuracy)
	}
	// Elapsed is corrected: three late ticks still count three intervals.
	if st.Elapsed != 3*f.settings.TickInterval {
		t.Errorf("corrected elapsed = %v, want %v", st.Elapsed, 3*f.settings.TickInterval)
	}

	// The precision warning is raised once, not per tick.
	warnings := 0
	for _, k := range f.events.errorKinds() {
		if k == KindTimingPrecisionLost {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("timing warnings = %d, want 1", warnings)
	}
}

func TestBackgroundedKeepsTicking(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitExecCount(t, 1)
	if err := f.engine.Background(); err != nil {
		t.Fatal(err)
	}
	f.tickN(5)

	st := f.engine.Status()
	if st.State != StateBackgrounded {
		t.Fatalf("state = %v, want backgrounded", st.State)
	}
	if st.Elapsed != 5*time.Minute {
		t.Errorf("elapsed while backgrounded = %v, want 5m", st.Elapsed)
	}

	// The keepalive cadence keeps firing in the background.
	f.tickN(6)
	f.waitExecCount(t, 2)

	if err := f.engine.Foreground(); err != nil {
		t.Fatal(err)
	}
	if st := f.engine.Status().State; st != StateRunning {
		t.Errorf("state after foreground = %v", st)
	}
}

func TestBackgroundFailureKindAndRecovery(t *testing.T) {
	f := newFixture(t, testEngineSettings())
	f.runner.errs = []error{nil, errors.New("exit status 1")}

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.waitExecCount(t, 1)
	if err := f.engine.Background(); err != nil {
		t.Fatal(err)
	}

	f.tickN(11)
	f.waitState(t, StateRecovering)

	kinds := f.events.errorKinds()
	if len(kinds) == 0 || kinds[0] != KindBackgroundTaskFailed {
		t.Fatalf("error kinds = %v, want backgroundTaskFailed first", kinds)
	}

	// A successful retry hands the session back to the state it failed in.
	f.timers.fire(t)
	f.waitExecCount(t, 2)
	if st := f.engine.Status().State; st != StateBackgrounded {
		t.Errorf("state after recovery = %v, want backgrounded", st)
	}
}

// ---- settings ----

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	bad := testEngineSettings()
	bad.TickInterval = 0
	if err := f.engine.UpdateSettings(bad); !errors.Is(err, ErrSettingsTick) {
		t.Fatalf("update = %v, want ErrSettingsTick", err)
	}
	// Current settings are untouched.
	if got := f.engine.Settings().TickInterval; got != time.Minute {
		t.Errorf("tick interval mutated to %v", got)
	}
}

func TestUpdateSettingsAppliesToSubsequentTicks(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if _, err := f.engine.Start(); err != nil {
		t.Fatal(err)
	}
	f.tickN(2)

	next := testEngineSettings()
	next.TickInterval = 30 * time.Second
	if err := f.engine.UpdateSettings(next); err != nil {
		t.Fatal(err)
	}
	f.settings = next

	// Ticks at the new interval accrue no drift: the tracker restarted.
	f.tickN(4)
	st := f.engine.Status()
	if st.Accuracy != AccuracyHigh {
		t.Errorf("accuracy after interval change = %v, want high", st.Accuracy)
	}
	if st.Elapsed != 4*time.Minute {
		t.Errorf("elapsed = %v, want 4m", st.Elapsed)
	}
}

// ---- crash recovery ----

func TestRecoveryRestoresActiveSessionAsPaused(t *testing.T) {
	clock := NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemStore()

	// A session that started 2h before the crash and last ticked 1h ago.
	start := clock.Now().Add(-2 * time.Hour)
	rec := testRecord(start, 5*time.Hour)
	rec.LastPrecisionCheck = clock.Now().Add(-time.Hour)
	rec.ExecutionCount = 12
	if err := store.Save(rec, rec.LastPrecisionCheck); err != nil {
		t.Fatal(err)
	}

	events := &eventRecorder{}
	e := NewEngine(testEngineSettings(), &EngineOptions{
		Clock:           clock,
		Runner:          &scriptRunner{},
		Store:           store,
		Handlers:        events.handlers(),
		Logger:          log.New(io.Discard, "", 0),
		DisableTickLoop: true,
	})
	defer e.Close()

	st := e.Status()
	if st.State != StatePaused {
		t.Fatalf("recovered state = %v, want paused", st.State)
	}
	if st.ExecutionCount != 12 {
		t.Errorf("execution count = %d, want 12", st.ExecutionCount)
	}
	// The offline hour is an implicit pause: only the 1h of observed
	// runtime counts.
	if st.Elapsed != time.Hour {
		t.Errorf("recovered elapsed = %v, want 1h", st.Elapsed)
	}

	// The session stays paused until an explicit resume.
	clock.Advance(10 * time.Minute)
	if got := e.Status().Elapsed; got != time.Hour {
		t.Errorf("elapsed moved while awaiting resume: %v", got)
	}
	if err := e.Resume(); err != nil {
		t.Fatalf("resume after recovery: %v", err)
	}
	if st := e.Status().State; st != StateRunning {
		t.Errorf("state after resume = %v", st)
	}
}

func TestRecoveryCorruptedCheckpointStartsIdle(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/data/session.vigil", []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(fs, "/data/session.vigil")

	events := &eventRecorder{}
	e := NewEngine(testEngineSettings(), &EngineOptions{
		Clock:           NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Runner:          &scriptRunner{},
		Store:           store,
		Handlers:        events.handlers(),
		Logger:          log.New(io.Discard, "", 0),
		DisableTickLoop: true,
	})
	defer e.Close()

	if st := e.Status().State; st != StateIdle {
		t.Fatalf("state after corrupted recovery = %v, want idle", st)
	}
	kinds := events.errorKinds()
	if len(kinds) != 1 || kinds[0] != KindPersistenceCorrupted {
		t.Errorf("error kinds = %v, want [persistence_corrupted]", kinds)
	}
	// The corrupted checkpoint was discarded.
	if _, err := store.Load(); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("corrupted checkpoint not cleared: %v", err)
	}
}

func TestRecoveryKeepsTerminalRecord(t *testing.T) {
	clock := NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemStore()

	rec := testRecord(clock.Now().Add(-6*time.Hour), 5*time.Hour)
	rec.State = StateCompleted
	if err := store.Save(rec, clock.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(testEngineSettings(), &EngineOptions{
		Clock:           clock,
		Runner:          &scriptRunner{},
		Store:           store,
		Logger:          log.New(io.Discard, "", 0),
		DisableTickLoop: true,
	})
	defer e.Close()

	if st := e.Status().State; st != StateCompleted {
		t.Fatalf("state = %v, want completed", st)
	}
	// A fresh session can start over the resting record.
	snap, err := e.Start()
	if err != nil {
		t.Fatalf("start over terminal record: %v", err)
	}
	if snap.SessionID == rec.ID {
		t.Error("start reused the terminal session id")
	}
}

func TestCloseRejectsFurtherStarts(t *testing.T) {
	f := newFixture(t, testEngineSettings())

	if err := f.engine.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Start(); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("start after close = %v, want ErrEngineClosed", err)
	}
	// Close is idempotent.
	if err := f.engine.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
