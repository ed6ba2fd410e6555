package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// defaultTimeout applies when Command.Timeout is zero.
	defaultTimeout = 60 * time.Second

	// defaultGracePeriod is how long a timed-out group gets between SIGTERM and SIGKILL.
	defaultGracePeriod = 2 * time.Second

	// maxOutputBytes caps each captured stream.
	maxOutputBytes = 64 * 1024
)

// Command describes a one-shot external command.
type Command struct {
	// Name is the executable, resolved via PATH.
	Name string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables (key=value format).
	Env []string

	// WorkDir is the working directory. Empty inherits from the parent.
	WorkDir string

	// Timeout bounds the whole run. Zero means 60 seconds.
	Timeout time.Duration

	// GracePeriod is the wait between SIGTERM and SIGKILL after the timeout.
	GracePeriod time.Duration
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Runner executes Commands. The zero value is ready to use.
type Runner struct {
	logger Logger
}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Run executes c with a package-level Runner that does not log.
func Run(ctx context.Context, c Command) (Result, error) {
	return NewRunner().Run(ctx, c)
}

// Run executes c and waits for it to finish.
//
// The result is populated even when an error is returned, so callers can
// report partial output of a timed-out or failing command.
//
// Returns:
//   - Result: Captured stdout, stderr, exit code and duration
//   - error: ErrTimeout, *ExitError, ErrInvalidCommand, a start failure,
//     or the parent context's error
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Name == "" {
		return Result{}, fmt.Errorf("%w: name is required", ErrInvalidCommand)
	}
	logger := r.logger
	if logger == nil {
		logger = noopLogger{}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	grace := c.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...) //nolint:gosec // Commands are fixed by operator command handlers

	// Own process group so children (git's helpers) are signalled too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	if c.Env != nil {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.WorkDir != "" {
		cmd.Dir = c.WorkDir
	}

	stdout := &limitedBuffer{limit: maxOutputBytes}
	stderr := &limitedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("running command", "name", c.Name, "args", c.Args, "timeout", timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting %s: %w", c.Name, err)
	}

	// WaitDelay only kills the direct child; make sure the group goes too.
	stopKill := context.AfterFunc(runCtx, func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		<-timer.C
		signalGroup(cmd, syscall.SIGKILL) //nolint:errcheck // Group may already be gone
	})
	waitErr := cmd.Wait()
	stopKill()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		logger.Warn("command timed out", "name", c.Name, "timeout", timeout)
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, c.Name, timeout)
	case ctx.Err() != nil:
		return res, ctx.Err()
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, &ExitError{Name: c.Name, ExitCode: exitErr.ExitCode()}
		}
		return res, fmt.Errorf("waiting for %s: %w", c.Name, waitErr)
	}

	logger.Debug("command finished", "name", c.Name, "duration", res.Duration)
	return res, nil
}

// signalGroup signals the process group led by cmd's process.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	// Negative PID addresses the group created via Setpgid.
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	// Report the full length so the child never sees a short write.
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
