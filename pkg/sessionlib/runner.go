package sessionlib

import (
	"context"
	"fmt"
	"log"
	"os/exec"
)

// CommandRunner executes the keepalive command. Implementations must honor
// the context deadline and be cancellable; the engine never blocks the tick
// loop on an invocation.
type CommandRunner interface {
	Invoke(ctx context.Context, spec CommandSpec) error
}

// ExecRunner invokes the command as a local subprocess.
type ExecRunner struct {
	log *log.Logger
}

// NewExecRunner creates an ExecRunner logging to l. A nil logger disables
// invocation logging.
func NewExecRunner(l *log.Logger) *ExecRunner {
	return &ExecRunner{log: l}
}

// Invoke runs the command and waits for it to finish. The process is killed
// when ctx is done; the resulting error carries the context cause so callers
// can distinguish timeout from cancellation.
func (r *ExecRunner) Invoke(ctx context.Context, spec CommandSpec) error {
	if spec.Empty() {
		return ErrSettingsCommand
	}
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("invoke %s: %w", spec.Path, ctxErr)
		}
		if len(out) > 0 {
			return fmt.Errorf("invoke %s: %w: %s", spec.Path, err, firstLine(out))
		}
		return fmt.Errorf("invoke %s: %w", spec.Path, err)
	}
	if r.log != nil {
		r.log.Printf("invoked %s (%d bytes output)", spec.Path, len(out))
	}
	return nil
}

// firstLine truncates command output to its first line for error messages.
func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}

// RunnerFunc adapts a function to the CommandRunner interface.
type RunnerFunc func(ctx context.Context, spec CommandSpec) error

// Invoke calls f.
func (f RunnerFunc) Invoke(ctx context.Context, spec CommandSpec) error {
	return f(ctx, spec)
}

var _ CommandRunner = (*ExecRunner)(nil)
