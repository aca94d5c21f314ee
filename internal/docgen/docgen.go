// Package docgen runs the documentation generator in strict mode and judges the result.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/process"
)

// Operator-facing build verdicts.
const (
	SuccessMessage = "Documentation built successfully."
	FailureMessage = "Documentation build failed: resolve the warnings and errors above before re-running."
)

// Command builds the generator invocation for builder (html, linkcheck) rooted at dir.
// Output lands in <output_dir>/<builder>.
func Command(cfg config.GeneratorConfig, dir, builder string) process.Command {
	var args []string
	if cfg.StrictMode() {
		args = append(args, "-W")
		if cfg.KeepGoingMode() {
			args = append(args, "--keep-going")
		}
	}
	args = append(args, "-b", builder)
	args = append(args, cfg.ExtraArgs...)
	args = append(args, cfg.SourceDir, OutputPath(cfg, builder))
	return process.Command{Name: cfg.Command, Args: args, Dir: dir, Env: cfg.Env}
}

// OutputPath is the builder's output directory relative to the checkout.
func OutputPath(cfg config.GeneratorConfig, builder string) string {
	return filepath.Join(cfg.OutputDir, builder)
}

// Report is the outcome of one build.
type Report struct {
	Command     string
	ExitCode    int
	Diagnostics []Diagnostic
	OutputDir   string // absolute path of the built site
}

// Warnings returns the number of warning diagnostics.
func (r *Report) Warnings() int {
	w, _ := Count(r.Diagnostics)
	return w
}

// Errors returns the number of error and critical diagnostics.
func (r *Report) Errors() int {
	_, e := Count(r.Diagnostics)
	return e
}

// Clean reports whether the build exited zero without any diagnostics.
func (r *Report) Clean() bool { return r.ExitCode == 0 && len(r.Diagnostics) == 0 }

// Verifier runs the strict build.
type Verifier struct {
	cfg     config.GeneratorConfig
	runner  process.Runner
	console io.Writer
	logger  *slog.Logger
}

// NewVerifier creates a build verifier. Verdict messages are written to console.
func NewVerifier(cfg config.GeneratorConfig, runner process.Runner, console io.Writer) *Verifier {
	if console == nil {
		console = io.Discard
	}
	return &Verifier{cfg: cfg, runner: runner, console: console, logger: slog.Default()}
}

// WithLogger sets the logger.
func (v *Verifier) WithLogger(l *slog.Logger) *Verifier {
	if l != nil {
		v.logger = l
	}
	return v
}

// Verify builds the documentation in dir. Any warning, error or non-zero exit fails the build.
func (v *Verifier) Verify(ctx context.Context, dir string) (*Report, error) {
	builder := v.cfg.Builder
	if builder == "" {
		builder = "html"
	}
	cmd := Command(v.cfg, dir, builder)
	v.logger.Info("Building documentation", logfields.Command(cmd.String()))

	res, runErr := v.runner.Run(ctx, cmd)
	report := &Report{Command: cmd.String(), OutputDir: filepath.Join(dir, OutputPath(v.cfg, builder))}
	if res != nil {
		report.ExitCode = res.ExitCode
		report.Diagnostics = ParseDiagnostics(res.Output)
	}

	if runErr != nil && ctx.Err() != nil {
		return report, ctx.Err()
	}
	if runErr == nil && report.Clean() {
		_, _ = fmt.Fprintln(v.console, SuccessMessage)
		v.logger.Info(SuccessMessage, logfields.Duration(durationOf(res)))
		return report, nil
	}

	_, _ = fmt.Fprintln(v.console, FailureMessage)
	return report, buildFailure(runErr, report)
}

func buildFailure(runErr error, report *Report) error {
	msg := fmt.Sprintf("documentation build reported %d warning(s) and %d error(s)", report.Warnings(), report.Errors())
	switch {
	case errors.Is(runErr, process.ErrBinaryNotFound):
		msg = "documentation generator not found"
	case len(report.Diagnostics) == 0:
		msg = fmt.Sprintf("documentation generator exited with code %d", report.ExitCode)
	}
	return ferrors.NewError(ferrors.CategoryBuild, msg).
		Fatal().
		WithCause(runErr).
		WithContext("warnings", report.Warnings()).
		WithContext("errors", report.Errors()).
		WithContext("exit_code", report.ExitCode).
		Build()
}

func durationOf(res *process.Result) time.Duration {
	if res == nil {
		return 0
	}
	return res.Duration
}
