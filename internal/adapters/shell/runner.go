// Package shell starts gesture commands through a POSIX shell.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
)

const defaultShell = "sh"

// Runner runs commands as `<shell> -c <command>` in their own process group
// with stdio discarded. Run returns once the process has started; exit
// status is collected in the background and only logged.
type Runner struct {
	shell  string
	logger logger.Logger
	wg     sync.WaitGroup
}

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithShell sets the shell binary.
func WithShell(shell string) Option {
	return func(r *Runner) {
		if shell != "" {
			r.shell = shell
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner using sh.
func New(opts ...Option) *Runner {
	r := &Runner{
		shell:  defaultShell,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts command. The process is not tied to ctx; it outlives the
// gesture that triggered it.
func (r *Runner) Run(ctx context.Context, command string) error {
	if strings.TrimSpace(command) == "" {
		return ErrEmptyCommand
	}

	cmd := exec.Command(r.shell, "-c", command) //nolint:gosec // commands come from the user's own configuration
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	r.wg.Add(1)
	go r.reap(ctx, cmd, command)
	return nil
}

func (r *Runner) reap(ctx context.Context, cmd *exec.Cmd, command string) {
	defer r.wg.Done()

	start := time.Now()
	err := cmd.Wait()
	if err == nil {
		r.logger.Debug(ctx, "command exited",
			logger.String("command", command),
			logger.Duration("elapsed", time.Since(start)),
		)
		return
	}

	metrics.RecordCommandFailure("exit")
	fields := []logger.Field{logger.String("command", command), logger.Error(err)}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		fields = append(fields, logger.Int("exit_code", exitErr.ExitCode()))
	}
	r.logger.Warn(ctx, "command failed", fields...)
}

// Wait blocks until every started command has exited or ctx is done.
// Commands still running are left alone.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for commands: %w", ctx.Err())
	}
}
