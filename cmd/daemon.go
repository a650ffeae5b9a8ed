package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/vigild/vigil/cmd/common"
	guard "github.com/vigild/vigil/internal/daemon"
	"github.com/vigild/vigil/pkg/logger"
)

// runDaemon runs the vigil daemon in the foreground until it receives an
// interrupt or termination signal. A TCP guard port keeps a second daemon
// instance from starting alongside the RPC server's Unix socket.
func runDaemon(cliCtx *cli.Context) error {
	l := logger.NewStandardLogger(log.Default())
	defer l.Close()

	c, err := initDaemonComponents(l)
	if err != nil {
		common.PrintRuntimeErr(cliCtx, "daemon", "init", err)
		return nil
	}
	defer c.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- c.Server.Start(runCtx) }()

	runner := guard.New(&guard.Config{
		Port:            guardPort(),
		ConfigDir:       c.ConfigDir,
		ShutdownTimeout: DEF_SHUTDOWN_TIMEOUT,
	}, &guard.Dependencies{
		ShutdownFunc: c.Server.Shutdown,
	})

	l.Info("daemon running (version %s)", currentBuildArgs.Version)
	if err := runner.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("daemon guard: %v", err)
	}
	cancel()
	return <-serveErr
}
