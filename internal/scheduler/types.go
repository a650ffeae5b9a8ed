package scheduler

import "time"

// StartEvent represents a pending scheduled session start in the scheduler heap.
// It is an in-memory only type — schedules do not survive a daemon restart.
type StartEvent struct {
	// ID is the unique identifier of the schedule, returned to the caller
	// so the schedule can be cancelled later.
	ID string
	// TriggerAt is the wall-clock time when the session should be started.
	TriggerAt time.Time
	// CronExpr is the cron expression for recurring starts.
	// Empty string means one-shot — no re-scheduling after firing.
	CronExpr string
}
