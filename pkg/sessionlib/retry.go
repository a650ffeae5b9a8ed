package sessionlib

import (
	"math"
	"math/rand"
	"time"
)

// Backoff shaping constants for automatic recovery retries.
const (
	DEF_MAX_RETRY_DELAY = 5 * time.Minute
	DEF_JITTER_FACTOR   = 0.25
	DEF_BACKOFF_FACTOR  = 2.0
)

// RetryState tracks the automatic recovery attempts for the live session.
type RetryState struct {
	// Attempts is the number of attempts made since the last success.
	Attempts int
	// LastError is the most recent invocation error.
	LastError *SessionError
	// LastAttempt is the time of the last attempt.
	LastAttempt time.Time
	// TotalDelayed is the cumulative time spent waiting between retries.
	TotalDelayed time.Duration
}

// reset clears the state after a successful invocation.
func (s *RetryState) reset() {
	s.Attempts = 0
	s.LastError = nil
	s.TotalDelayed = 0
}

// retryDelayFor computes the delay before the next automatic retry of the
// given kind. The base delay is kind-specific, falling back to the settings
// value for kinds without one, then shaped with exponential backoff and
// jitter and capped at DEF_MAX_RETRY_DELAY.
func retryDelayFor(kind ErrorKind, settings SchedulerSettings, attempt int) time.Duration {
	base := kind.RetryDelay()
	if base <= 0 {
		base = settings.RetryDelay
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(base) * math.Pow(DEF_BACKOFF_FACTOR, float64(attempt-1))

	if DEF_JITTER_FACTOR > 0 {
		jitter := DEF_JITTER_FACTOR * (2*rand.Float64() - 1) // random in [-1, 1]
		delay *= (1 + jitter)
	}

	if delay > float64(DEF_MAX_RETRY_DELAY) {
		delay = float64(DEF_MAX_RETRY_DELAY)
	}
	if delay < 0 {
		delay = float64(base)
	}
	return time.Duration(delay)
}

// retryBudget returns the attempt cap for the given kind: the tighter of the
// per-kind cap and the session-wide MaxRetryAttempts setting.
func retryBudget(kind ErrorKind, settings SchedulerSettings) int {
	budget := settings.MaxRetryAttempts
	if kindMax := kind.MaxRetries(); kindMax > 0 && kindMax < budget {
		budget = kindMax
	}
	return budget
}
