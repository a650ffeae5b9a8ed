package common

import (
	"time"

	"github.com/vigild/vigil/pkg/sessionlib"
)

// StatusResult is the wire form of a session status snapshot. Durations
// travel as whole seconds.
type StatusResult struct {
	SessionID      string                   `json:"session_id,omitempty"`
	State          string                   `json:"state"`
	Progress       float64                  `json:"progress"`
	ElapsedSec     int64                    `json:"elapsed_sec"`
	RemainingSec   int64                    `json:"remaining_sec"`
	ExecutionCount int64                    `json:"execution_count"`
	Accuracy       string                   `json:"accuracy"`
	LastError      *sessionlib.SessionError `json:"last_error,omitempty"`
	At             time.Time                `json:"at"`
}

// FromSnapshot converts an engine snapshot to its wire form.
func FromSnapshot(snap sessionlib.StatusSnapshot) *StatusResult {
	return &StatusResult{
		SessionID:      snap.SessionID,
		State:          string(snap.State),
		Progress:       snap.Progress,
		ElapsedSec:     int64(snap.Elapsed / time.Second),
		RemainingSec:   int64(snap.TimeRemaining / time.Second),
		ExecutionCount: snap.ExecutionCount,
		Accuracy:       string(snap.Accuracy),
		LastError:      snap.LastError,
		At:             snap.At,
	}
}

// SettingsPayload is the wire form of the scheduler settings.
type SettingsPayload struct {
	SessionDurationSec int64    `json:"session_duration_sec"`
	TickIntervalSec    int64    `json:"tick_interval_sec"`
	ExecIntervalSec    int64    `json:"exec_interval_sec"`
	CommandTimeoutSec  int64    `json:"command_timeout_sec"`
	CommandPath        string   `json:"command_path"`
	CommandArgs        []string `json:"command_args,omitempty"`
	AutoRestart        bool     `json:"auto_restart"`
	MaxRetryAttempts   int      `json:"max_retry_attempts"`
	RetryDelaySec      int64    `json:"retry_delay_sec"`
	AdaptiveTick       bool     `json:"adaptive_tick"`
}

// FromSettings converts engine settings to their wire form.
func FromSettings(s sessionlib.SchedulerSettings) *SettingsPayload {
	return &SettingsPayload{
		SessionDurationSec: int64(s.SessionDuration / time.Second),
		TickIntervalSec:    int64(s.TickInterval / time.Second),
		ExecIntervalSec:    int64(s.ExecInterval / time.Second),
		CommandTimeoutSec:  int64(s.CommandTimeout / time.Second),
		CommandPath:        s.Command.Path,
		CommandArgs:        s.Command.Args,
		AutoRestart:        s.AutoRestart,
		MaxRetryAttempts:   s.MaxRetryAttempts,
		RetryDelaySec:      int64(s.RetryDelay / time.Second),
		AdaptiveTick:       s.AdaptiveTickWhenLowPower,
	}
}

// ToSettings converts the wire form back to engine settings.
func (p *SettingsPayload) ToSettings() sessionlib.SchedulerSettings {
	return sessionlib.SchedulerSettings{
		SessionDuration: time.Duration(p.SessionDurationSec) * time.Second,
		TickInterval:    time.Duration(p.TickIntervalSec) * time.Second,
		ExecInterval:    time.Duration(p.ExecIntervalSec) * time.Second,
		CommandTimeout:  time.Duration(p.CommandTimeoutSec) * time.Second,
		Command: sessionlib.CommandSpec{
			Path: p.CommandPath,
			Args: p.CommandArgs,
		},
		AutoRestart:              p.AutoRestart,
		MaxRetryAttempts:         p.MaxRetryAttempts,
		RetryDelay:               time.Duration(p.RetryDelaySec) * time.Second,
		AdaptiveTickWhenLowPower: p.AdaptiveTick,
	}
}

// LowPowerParams is the input for system.lowPower.
type LowPowerParams struct {
	On bool `json:"on"`
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

// ScheduleParams is the input for schedule.add. Exactly one of StartAt
// (RFC 3339) or CronExpr must be set; a cron schedule recurs.
type ScheduleParams struct {
	StartAt  string `json:"start_at,omitempty"`
	CronExpr string `json:"cron_expr,omitempty"`
}

// ScheduleResult is the response for schedule.add.
type ScheduleResult struct {
	ScheduleID string    `json:"schedule_id"`
	TriggerAt  time.Time `json:"trigger_at"`
	CronExpr   string    `json:"cron_expr,omitempty"`
}

// UnscheduleParams is the input for schedule.remove.
type UnscheduleParams struct {
	ScheduleID string `json:"schedule_id"`
}

// SchedulesResult is the response for schedule.list.
type SchedulesResult struct {
	Schedules []*ScheduleResult `json:"schedules"`
}

// ExecutionNotification is pushed after each successful command invocation.
type ExecutionNotification struct {
	SessionID string `json:"session_id"`
	Count     int64  `json:"count"`
}

// ErrorNotification is pushed when a session error is recorded.
type ErrorNotification struct {
	SessionID string                   `json:"session_id,omitempty"`
	Error     *sessionlib.SessionError `json:"error"`
}

// CompleteNotification is pushed when a session reaches its planned
// duration.
type CompleteNotification struct {
	SessionID string `json:"session_id"`
}
