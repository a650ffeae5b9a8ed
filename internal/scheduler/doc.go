// Package scheduler provides session start scheduling for the vigil daemon.
// It implements a single-goroutine scheduler using a min-heap of StartEvents
// sorted by trigger time, with a 60-second max-sleep-cap to handle NTP steps,
// DST transitions, and system sleep (macOS monotonic clock pause).
//
// The scheduler is a daemon-level component that fires events and calls a
// registered OnTrigger callback to start a session through the engine. It
// does not persist state — pending schedules are lost on daemon restart.
package scheduler
