package sessionlib

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Sentinel errors returned by engine operations.
var (
	ErrNoSession      = errors.New("no live session")
	ErrEngineClosed   = errors.New("engine is closed")
	ErrInvokeCanceled = errors.New("command invocation canceled")
)

// ErrorKind classifies a session failure. Each kind carries a fixed policy:
// auto-recoverability, severity, retry attempts and retry delay.
type ErrorKind string

const (
	KindConfigurationInvalid      ErrorKind = "configuration_invalid"
	KindCommandNotFound           ErrorKind = "command_not_found"
	KindCommandExecutionFailed    ErrorKind = "command_execution_failed"
	KindTimingPrecisionLost       ErrorKind = "timing_precision_lost"
	KindBackgroundTaskFailed      ErrorKind = "background_task_failed"
	KindMemoryPressure            ErrorKind = "memory_pressure"
	KindPersistenceCorrupted      ErrorKind = "persistence_corrupted"
	KindRecoveryFailed            ErrorKind = "recovery_failed"
	KindSystemResourceUnavailable ErrorKind = "system_resource_unavailable"
)

// Severity grades how an error kind propagates.
type Severity string

const (
	// SeverityWarning errors self-heal within the tick loop and never halt
	// the session.
	SeverityWarning Severity = "warning"
	// SeverityRecoverable errors drive the automatic retry policy.
	SeverityRecoverable Severity = "recoverable"
	// SeverityCritical errors always land in the error state and require an
	// explicit user-initiated retry or reset.
	SeverityCritical Severity = "critical"
)

// kindPolicy is the fixed per-kind error handling policy.
type kindPolicy struct {
	autoRecoverable bool
	severity        Severity
	maxRetries      int
	retryDelay      time.Duration
	suggestion      string
}

// kindPolicies maps every error kind to its policy. The suggestion field is
// a key for the presentation layer, never rendered by the engine itself.
var kindPolicies = map[ErrorKind]kindPolicy{
	KindConfigurationInvalid: {
		severity:   SeverityCritical,
		suggestion: "suggestion.check_settings",
	},
	KindCommandNotFound: {
		severity:   SeverityCritical,
		suggestion: "suggestion.install_command",
	},
	KindCommandExecutionFailed: {
		autoRecoverable: true,
		severity:        SeverityRecoverable,
		maxRetries:      3,
		retryDelay:      30 * time.Second,
		suggestion:      "suggestion.check_command_output",
	},
	KindTimingPrecisionLost: {
		autoRecoverable: true,
		severity:        SeverityWarning,
		suggestion:      "suggestion.reduce_system_load",
	},
	KindBackgroundTaskFailed: {
		autoRecoverable: true,
		severity:        SeverityRecoverable,
		maxRetries:      2,
		retryDelay:      10 * time.Second,
		suggestion:      "suggestion.reopen_app",
	},
	KindMemoryPressure: {
		autoRecoverable: true,
		severity:        SeverityRecoverable,
		maxRetries:      1,
		retryDelay:      time.Minute,
		suggestion:      "suggestion.free_memory",
	},
	KindPersistenceCorrupted: {
		severity:   SeverityCritical,
		suggestion: "suggestion.reset_session",
	},
	KindRecoveryFailed: {
		severity:   SeverityCritical,
		suggestion: "suggestion.retry_manually",
	},
	KindSystemResourceUnavailable: {
		severity:   SeverityCritical,
		suggestion: "suggestion.check_system",
	},
}

// AutoRecoverable reports whether the engine may retry this kind without
// user intervention.
func (k ErrorKind) AutoRecoverable() bool { return kindPolicies[k].autoRecoverable }

// Severity returns the propagation grade of the kind.
func (k ErrorKind) Severity() Severity { return kindPolicies[k].severity }

// MaxRetries returns the per-kind automatic retry cap.
func (k ErrorKind) MaxRetries() int { return kindPolicies[k].maxRetries }

// RetryDelay returns the per-kind base delay before an automatic retry.
func (k ErrorKind) RetryDelay() time.Duration { return kindPolicies[k].retryDelay }

// Suggestion returns the human-readable suggestion key for the kind.
func (k ErrorKind) Suggestion() string { return kindPolicies[k].suggestion }

// SessionError is the error classification recorded on a session. It is
// serialized into checkpoints, so all fields are exported.
type SessionError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`
	// Message is the underlying error text.
	Message string `json:"message"`
	// Attempts is the number of automatic recovery attempts consumed, if the
	// kind drove the retry policy.
	Attempts int `json:"attempts,omitempty"`
	// Suggestion is the presentation-layer suggestion key.
	Suggestion string `json:"suggestion,omitempty"`
}

// NewSessionError builds a SessionError of the given kind wrapping err.
func NewSessionError(kind ErrorKind, err error) *SessionError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &SessionError{
		Kind:       kind,
		Message:    msg,
		Suggestion: kind.Suggestion(),
	}
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ClassifyInvokeError maps a command invocation failure to an error kind.
// Context cancellation is not a session failure (the invocation was
// deliberately abandoned); callers must filter it out before classifying.
func ClassifyInvokeError(err error) ErrorKind {
	if err == nil {
		return KindCommandExecutionFailed
	}

	if errors.Is(err, exec.ErrNotFound) {
		return KindCommandNotFound
	}

	// A timed-out invocation is a transient execution failure.
	if errors.Is(err, context.DeadlineExceeded) {
		return KindCommandExecutionFailed
	}

	// String-based pattern matching for wrapped platform errors.
	errStr := strings.ToLower(err.Error())

	notFoundPatterns := []string{
		"executable file not found",
		"no such file or directory",
		"command not found",
	}
	for _, pattern := range notFoundPatterns {
		if strings.Contains(errStr, pattern) {
			return KindCommandNotFound
		}
	}

	if strings.Contains(errStr, "cannot allocate memory") {
		return KindMemoryPressure
	}

	resourcePatterns := []string{
		"resource temporarily unavailable",
		"too many open files",
		"permission denied",
	}
	for _, pattern := range resourcePatterns {
		if strings.Contains(errStr, pattern) {
			return KindSystemResourceUnavailable
		}
	}

	return KindCommandExecutionFailed
}
