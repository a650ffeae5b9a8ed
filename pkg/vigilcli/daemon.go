package vigilcli

import (
	"fmt"
	"net"
	"os"
	"time"
)

const (
	daemonStartTimeout = 3 * time.Second
	socketPollInterval = 50 * time.Millisecond
	socketDialTimeout  = 100 * time.Millisecond
)

// EnsureDaemon checks if the daemon is running and spawns it if not.
// Returns nil if the daemon is running or was successfully started.
func EnsureDaemon() error {
	if isDaemonRunning() {
		return nil
	}

	if err := spawnDaemon(); err != nil {
		return err
	}

	return waitForSocket(daemonStartTimeout)
}

// isDaemonRunning probes the daemon's socket (or TCP fallback).
func isDaemonRunning() bool {
	path := socketPath()
	if _, err := os.Stat(path); err == nil {
		conn, err := net.DialTimeout("unix", path, socketDialTimeout)
		if err == nil {
			conn.Close()
			return true
		}
	}
	conn, err := net.DialTimeout("tcp", tcpAddress(), socketDialTimeout)
	if err == nil {
		conn.Close()
		return true
	}
	return false
}

// waitForSocket polls until the daemon answers or the timeout expires.
func waitForSocket(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if isDaemonRunning() {
			return nil
		}
		time.Sleep(socketPollInterval)
	}
	return fmt.Errorf("daemon failed to start within %v", timeout)
}
