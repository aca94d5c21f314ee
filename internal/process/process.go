// Package process runs the external tools the pipeline delegates to.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgate/internal/logfields"
)

var (
	// ErrBinaryNotFound is returned when the command is not on PATH.
	ErrBinaryNotFound = errors.New("executable not found")
	// ErrNonZeroExit is returned when the command exits with a non-zero status.
	ErrNonZeroExit = errors.New("command exited with non-zero status")
)

// Command describes one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string // added to the inherited environment
}

// String renders the command line for logs and reports.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished command.
type Result struct {
	Command  string
	ExitCode int
	Output   []string // combined stdout and stderr, one entry per line
	Duration time.Duration
}

// Runner executes commands. Implementations must block until the command exits.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (*Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (*Result, error) { return f(ctx, cmd) }

// ExecRunner runs commands with os/exec, streaming output to Console as it arrives.
type ExecRunner struct {
	Console io.Writer
	Logger  *slog.Logger
}

// NewExecRunner creates a runner streaming tool output to console (nil discards it).
func NewExecRunner(console io.Writer) *ExecRunner {
	if console == nil {
		console = io.Discard
	}
	return &ExecRunner{Console: console, Logger: slog.Default()}
}

// Run executes cmd. A non-zero exit returns the Result together with an error wrapping ErrNonZeroExit.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	path, err := exec.LookPath(cmd.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBinaryNotFound, cmd.Name, err)
	}

	// #nosec G204 - command and arguments come from the operator's configuration
	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = os.Environ()
		for k, v := range cmd.Env {
			c.Env = append(c.Env, k+"="+v)
		}
	}

	lw := &lineWriter{console: r.Console}
	c.Stdout = lw
	c.Stderr = lw

	log := r.logger().With(logfields.Command(cmd.String()), logfields.Path(cmd.Dir))
	log.Debug("Running external command")

	start := time.Now()
	runErr := c.Run()
	lw.flush()

	res := &Result{
		Command:  cmd.String(),
		ExitCode: exitCode(c, runErr),
		Output:   lw.lines,
		Duration: time.Since(start),
	}
	log.Debug("External command finished", logfields.ExitCode(res.ExitCode), logfields.Duration(res.Duration))

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return res, fmt.Errorf("%w: %s exited with code %d", ErrNonZeroExit, cmd.Name, res.ExitCode)
		}
		return res, fmt.Errorf("failed to run %s: %w", cmd.Name, runErr)
	}
	return res, nil
}

func (r *ExecRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func exitCode(c *exec.Cmd, err error) int {
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// lineWriter splits combined output into lines and echoes them to the console.
// exec serializes writes because Stdout and Stderr are the same pointer.
type lineWriter struct {
	mu      sync.Mutex
	console io.Writer
	partial bytes.Buffer
	lines   []string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, _ = w.console.Write(p)
	w.partial.Write(p)
	for {
		line, err := w.partial.ReadString('\n')
		if err != nil {
			// incomplete line: keep it for the next write
			w.partial.Reset()
			w.partial.WriteString(line)
			break
		}
		w.lines = append(w.lines, strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.partial.Len() > 0 {
		w.lines = append(w.lines, strings.TrimRight(w.partial.String(), "\r\n"))
		w.partial.Reset()
	}
}
