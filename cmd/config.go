package cmd

import "time"

const (
	// DEF_SHUTDOWN_TIMEOUT bounds graceful daemon shutdown.
	DEF_SHUTDOWN_TIMEOUT = time.Second * 10
)

const DESCRIPTION = `
Vigil is a keepalive daemon for unattended work sessions.
It runs a timed session in the background and periodically
invokes a configured command to keep remote connections,
VPN tunnels and licensed tools from idling out while you
are away from the machine.
`

const (
	StartDescription = `The start command begins a new keepalive session using the
currently configured settings. The session runs inside the
daemon and survives this CLI exiting.

Example:
        vigil start

`
	StatusDescription = `The status command prints a snapshot of the current session:
its state, progress through the planned duration, elapsed and
remaining time, and the number of keepalive executions so far.

Example:
        vigil status

`
	AttachDescription = `The attach command connects to the daemon and follows the
current session live, rendering a progress bar that advances
with the session clock and completes when the session does.

Example:
        vigil attach

`
	SettingsDescription = `The settings command shows the scheduler settings when called
without flags, or updates them when flags are given. Updates
are validated by the daemon and persisted for future sessions.

Example:
        vigil settings
        vigil settings --duration 10h --command "ssh -O check build-host"

`
	ScheduleDescription = `The schedule command arms an unattended session start, either
once at an absolute or relative time, or recurring on a cron
expression. Exactly one of --at, --in or --cron must be given.

Example:
        vigil schedule --at "2026-08-26 09:00"
        vigil schedule --in 2h
        vigil schedule --cron "0 9 * * 1-5"

`
	UnscheduleDescription = `The unschedule command cancels a pending scheduled start using
its schedule id, which you can retrieve with "vigil schedules".

Example:
        vigil unschedule <schedule id>

`
	SchedulesDescription = `The schedules command lists all pending scheduled session
starts along with their ids and next trigger times.

Example:
        vigil schedules

`
)
