package common

import (
	"testing"
	"time"

	"github.com/vigild/vigil/pkg/sessionlib"
)

func TestSettingsRoundTrip(t *testing.T) {
	s := sessionlib.DefaultSettings()
	s.Command = sessionlib.CommandSpec{Path: "claude", Args: []string{"-p", "ping"}}
	s.AutoRestart = true

	got := FromSettings(s).ToSettings()
	if got.SessionDuration != s.SessionDuration {
		t.Errorf("duration = %v, want %v", got.SessionDuration, s.SessionDuration)
	}
	if got.Command.Path != "claude" || len(got.Command.Args) != 2 {
		t.Errorf("command = %+v", got.Command)
	}
	if !got.AutoRestart || got.MaxRetryAttempts != s.MaxRetryAttempts {
		t.Errorf("flags lost: %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("round-tripped settings invalid: %v", err)
	}
}

func TestFromSnapshotSecondsTruncation(t *testing.T) {
	snap := sessionlib.StatusSnapshot{
		SessionID:     "s-1",
		State:         sessionlib.StateRunning,
		Progress:      0.5,
		Elapsed:       90*time.Minute + 400*time.Millisecond,
		TimeRemaining: 90 * time.Minute,
		Accuracy:      sessionlib.AccuracyHigh,
	}
	r := FromSnapshot(snap)
	if r.ElapsedSec != 5400 {
		t.Errorf("elapsed_sec = %d, want 5400", r.ElapsedSec)
	}
	if r.State != "running" || r.Accuracy != "high" {
		t.Errorf("wire strings = %q/%q", r.State, r.Accuracy)
	}
}
