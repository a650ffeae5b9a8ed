package sessionlib

import (
	"errors"
	"time"
)

// Default scheduler configuration values.
const (
	DEF_SESSION_DURATION = 5 * time.Hour
	DEF_TICK_INTERVAL    = time.Second
	DEF_EXEC_INTERVAL    = 5 * time.Minute
	DEF_COMMAND_TIMEOUT  = 2 * time.Minute
	DEF_MAX_RETRIES      = 3
	DEF_RETRY_DELAY      = 30 * time.Second

	// LowPowerTickFactor widens the tick interval under low-power conditions.
	LowPowerTickFactor = 6
)

// Settings validation errors.
var (
	ErrSettingsDuration = errors.New("session duration must be positive")
	ErrSettingsTick     = errors.New("tick interval must be positive")
	ErrSettingsExec     = errors.New("execution interval must be positive")
	ErrSettingsTimeout  = errors.New("command timeout must be positive")
	ErrSettingsRetry    = errors.New("retry delay must be positive")
	ErrSettingsAttempts = errors.New("max retry attempts must not be negative")
	ErrSettingsCommand  = errors.New("keepalive command must not be empty")
)

// CommandSpec identifies the external command the engine invokes at the
// configured cadence.
type CommandSpec struct {
	// Path is the executable name or path.
	Path string `json:"path"`
	// Args are the arguments passed to the executable.
	Args []string `json:"args,omitempty"`
}

// Empty reports whether no command is configured.
func (c CommandSpec) Empty() bool {
	return c.Path == ""
}

// SchedulerSettings is the immutable-per-session configuration snapshot of
// the engine. Updates take effect for subsequent ticks only.
type SchedulerSettings struct {
	// SessionDuration is the planned length of a session.
	SessionDuration time.Duration `json:"session_duration"`
	// TickInterval is the period of the scheduling loop.
	TickInterval time.Duration `json:"tick_interval"`
	// ExecInterval is the cadence at which the keepalive command is invoked.
	ExecInterval time.Duration `json:"exec_interval"`
	// CommandTimeout bounds a single command invocation.
	CommandTimeout time.Duration `json:"command_timeout"`
	// Command is the external command to invoke.
	Command CommandSpec `json:"command"`
	// AutoRestart starts a new session when the previous one completes.
	AutoRestart bool `json:"auto_restart"`
	// MaxRetryAttempts caps automatic retries of a failed invocation.
	MaxRetryAttempts int `json:"max_retry_attempts"`
	// RetryDelay is the base delay between automatic retries; the effective
	// delay is kind-specific (see retryDelayFor).
	RetryDelay time.Duration `json:"retry_delay"`
	// AdaptiveTickWhenLowPower widens the tick interval by
	// LowPowerTickFactor while the host reports low power.
	AdaptiveTickWhenLowPower bool `json:"adaptive_tick_when_low_power"`
}

// DefaultSettings returns a SchedulerSettings with sensible defaults.
// The command is intentionally left empty; it must be configured before a
// session can start.
func DefaultSettings() SchedulerSettings {
	return SchedulerSettings{
		SessionDuration:          DEF_SESSION_DURATION,
		TickInterval:             DEF_TICK_INTERVAL,
		ExecInterval:             DEF_EXEC_INTERVAL,
		CommandTimeout:           DEF_COMMAND_TIMEOUT,
		MaxRetryAttempts:         DEF_MAX_RETRIES,
		RetryDelay:               DEF_RETRY_DELAY,
		AdaptiveTickWhenLowPower: true,
	}
}

// Validate checks the settings for acceptance. Invalid settings must be
// rejected by callers without mutating the current configuration.
func (s SchedulerSettings) Validate() error {
	if s.SessionDuration <= 0 {
		return ErrSettingsDuration
	}
	if s.TickInterval <= 0 {
		return ErrSettingsTick
	}
	if s.ExecInterval <= 0 {
		return ErrSettingsExec
	}
	if s.CommandTimeout <= 0 {
		return ErrSettingsTimeout
	}
	if s.RetryDelay <= 0 {
		return ErrSettingsRetry
	}
	if s.MaxRetryAttempts < 0 {
		return ErrSettingsAttempts
	}
	if s.Command.Empty() {
		return ErrSettingsCommand
	}
	return nil
}

// effectiveTickInterval returns the tick interval adjusted for low power.
func (s SchedulerSettings) effectiveTickInterval(lowPower bool) time.Duration {
	if lowPower && s.AdaptiveTickWhenLowPower {
		return s.TickInterval * LowPowerTickFactor
	}
	return s.TickInterval
}
