package sessionlib

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigDirEnv is the environment variable name used to override the default
// configuration directory.
const ConfigDirEnv = "VIGIL_CONFIG_DIR"

// checkpointFileName is the name of the session checkpoint file inside the
// configuration directory.
const checkpointFileName = "session.vigil"

// ResolveConfigDir returns the vigil configuration directory, creating it if
// needed. The ConfigDirEnv environment variable overrides the default of
// os.UserConfigDir()/vigil.
func ResolveConfigDir() (string, error) {
	dir := os.Getenv(ConfigDirEnv)
	if dir == "" {
		cdr, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(cdr, "vigil")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if abs == "" {
		return "", errors.New("config dir is empty")
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", err
	}
	return abs, nil
}

// CheckpointPath returns the checkpoint file path inside dir.
func CheckpointPath(dir string) string {
	return filepath.Join(dir, checkpointFileName)
}
