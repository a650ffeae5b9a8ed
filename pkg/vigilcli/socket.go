package vigilcli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vigild/vigil/common"
)

func socketPath() string {
	if path := os.Getenv(common.SocketPathEnv); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "vigil.sock")
}

// tcpPort returns the TCP fallback port from the environment or the default.
func tcpPort() int {
	if port := os.Getenv(common.TCPPortEnv); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p >= 1 && p <= 65535 {
			return p
		}
	}
	return common.DefaultPort
}

// tcpAddress returns "127.0.0.1:{port}".
func tcpAddress() string {
	return fmt.Sprintf("%s:%d", common.TCPHost, tcpPort())
}
