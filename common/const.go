// Package common provides the shared wire types and constants used across
// the vigil client-server communication layer.
package common

// JSON-RPC method names exposed by the daemon.
const (
	MethodVersion  = "system.getVersion"
	MethodSleep    = "system.sleep"
	MethodWake     = "system.wake"
	MethodLowPower = "system.lowPower"

	MethodStart      = "session.start"
	MethodPause      = "session.pause"
	MethodResume     = "session.resume"
	MethodStop       = "session.stop"
	MethodReset      = "session.reset"
	MethodRetry      = "session.retry"
	MethodStatus     = "session.status"
	MethodBackground = "session.background"
	MethodForeground = "session.foreground"

	MethodSettingsGet    = "settings.get"
	MethodSettingsUpdate = "settings.update"

	MethodSchedule   = "schedule.add"
	MethodUnschedule = "schedule.remove"
	MethodSchedules  = "schedule.list"
)

// Push notification method names sent to attached observers.
const (
	NotifyStatus    = "session.status"
	NotifyExecution = "session.execution"
	NotifyError     = "session.error"
	NotifyComplete  = "session.complete"
)

// Environment variable names for configuration.
const (
	// SocketPathEnv overrides the daemon socket path.
	SocketPathEnv = "VIGIL_SOCKET_PATH"

	// TCPPortEnv overrides the TCP fallback port.
	TCPPortEnv = "VIGIL_TCP_PORT"

	// RPCSecretEnv overrides the keyring-backed RPC auth secret.
	RPCSecretEnv = "VIGIL_RPC_SECRET"
)

// TCPHost is the bind host for the TCP fallback listener.
const TCPHost = "127.0.0.1"

// DefaultPort is the default TCP fallback port.
const DefaultPort = 4289
