package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/vigild/vigil/common"
	"github.com/vigild/vigil/internal/scheduler"
	"github.com/vigild/vigil/internal/server"
	"github.com/vigild/vigil/pkg/logger"
	"github.com/vigild/vigil/pkg/sessionlib"
)

const settingsFileName = "settings.json"

// DaemonComponents holds all initialized daemon components.
// This allows for unified initialization and cleanup.
type DaemonComponents struct {
	ConfigDir string
	Engine    *sessionlib.Engine
	Scheduler *scheduler.Scheduler
	Notifier  *server.RPCNotifier
	RPC       *server.RPCServer
	Server    *server.Server

	cancelSched context.CancelFunc
	logger      logger.Logger
	stdLogger   interface{ Println(v ...interface{}) }
}

// Close releases all daemon component resources in reverse order of
// initialization.
func (c *DaemonComponents) Close() {
	if c.stdLogger != nil {
		c.stdLogger.Println("Shutting down daemon...")
	}

	if c.cancelSched != nil {
		c.cancelSched()
	}

	// Engine close writes a final checkpoint; crash recovery restores it
	// as paused on the next daemon start.
	if c.Engine != nil {
		if err := c.Engine.Close(); err != nil {
			c.logger.Error("engine close: %v", err)
		}
	}

	if c.stdLogger != nil {
		c.stdLogger.Println("Daemon stopped")
	}
}

// initDaemonComponents initializes all daemon components with the provided
// logger. Returns the initialized components or an error if initialization
// fails.
var initDaemonComponents = func(l logger.Logger) (*DaemonComponents, error) {
	stdLog := logger.ToStdLogger(l)

	cfgDir, err := sessionlib.ResolveConfigDir()
	if err != nil {
		l.Error("Config dir resolution failed: %v", err)
		return nil, err
	}

	fs := afero.NewOsFs()
	settings := loadSettings(fs, settingsPath(cfgDir), l)

	secret, err := server.LoadSecret()
	if err != nil {
		l.Error("RPC secret initialization failed: %v", err)
		return nil, err
	}

	notifier := server.NewRPCNotifier(l)
	handlers := notifier.EngineHandlers()

	eng := sessionlib.NewEngine(settings, &sessionlib.EngineOptions{
		Store:    sessionlib.NewFileStore(fs, sessionlib.CheckpointPath(cfgDir)),
		Runner:   sessionlib.NewExecRunner(stdLog),
		Handlers: &handlers,
		Logger:   stdLog,
	})

	schedCtx, cancelSched := context.WithCancel(context.Background())
	sched := scheduler.New(schedCtx, func(ev scheduler.StartEvent) {
		if _, err := eng.Start(); err != nil {
			l.Warning("scheduled start %s skipped: %v", ev.ID, err)
			return
		}
		l.Info("scheduled start %s fired", ev.ID)
	})

	rpc := server.NewRPCServer(&server.RPCConfig{
		Secret:    secret,
		Version:   currentBuildArgs.Version,
		Commit:    currentBuildArgs.Commit,
		BuildType: currentBuildArgs.BuildType,
	}, eng, sched, func(s sessionlib.SchedulerSettings) error {
		return writeSettings(fs, settingsPath(cfgDir), s)
	})

	serv := server.NewServer(l, rpc, notifier, rpcPort())

	return &DaemonComponents{
		ConfigDir:   cfgDir,
		Engine:      eng,
		Scheduler:   sched,
		Notifier:    notifier,
		RPC:         rpc,
		Server:      serv,
		cancelSched: cancelSched,
		logger:      l,
		stdLogger:   stdLog,
	}, nil
}

func settingsPath(dir string) string {
	return filepath.Join(dir, settingsFileName)
}

// rpcPort returns the TCP port used when the Unix socket is unavailable.
func rpcPort() int {
	if v := os.Getenv(common.TCPPortEnv); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 65536 {
			return p
		}
	}
	return common.DefaultPort
}

// guardPort sits one above the RPC fallback port so the single-instance
// guard never collides with the RPC listener.
func guardPort() int {
	return rpcPort() + 1
}

// loadSettings reads the persisted scheduler settings. A missing, corrupt
// or invalid settings file falls back to defaults so the daemon always
// comes up.
func loadSettings(fs afero.Fs, path string, l logger.Logger) sessionlib.SchedulerSettings {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.Warning("settings file unreadable, using defaults: %v", err)
		}
		return sessionlib.DefaultSettings()
	}
	s := sessionlib.DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		l.Warning("settings file corrupt, using defaults: %v", err)
		return sessionlib.DefaultSettings()
	}
	if err := s.Validate(); err != nil {
		l.Warning("settings file invalid, using defaults: %v", err)
		return sessionlib.DefaultSettings()
	}
	return s
}

func writeSettings(fs afero.Fs, path string, s sessionlib.SchedulerSettings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}
