// Package commands implements the docgate command line.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docgate/internal/config"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/process"
)

// Global carries process-wide dependencies into every command.
type Global struct {
	Stdout io.Writer
	// Runner executes external tools; nil uses the os/exec runner.
	Runner process.Runner
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Global) runner(console io.Writer) process.Runner {
	if g != nil && g.Runner != nil {
		return g.Runner
	}
	return process.NewExecRunner(console)
}

// CLI is the root command with global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"docgate.yaml" env:"DOCGATE_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" help:"Run the verification pipeline once"`
	Trigger TriggerCmd `cmd:"" help:"Report whether an event would start a run"`
	Daemon  DaemonCmd  `cmd:"" help:"Receive webhooks and run the pipeline for matching events"`
	History HistoryCmd `cmd:"" help:"List recorded runs or show one run"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
}

// AfterApply sets up logging before the configuration is known.
func (c *CLI) AfterApply() error {
	slog.SetDefault(config.LoggingConfig{}.NewLogger(os.Stderr, c.Verbose))
	return nil
}

// loadConfig reads the configuration file. With allowMissing, an absent file
// yields the defaults. The process logger is rebuilt from the logging section.
func (c *CLI) loadConfig(allowMissing bool) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(c.Config); allowMissing && os.IsNotExist(err) {
		slog.Debug("No configuration file, using defaults", logfields.Path(c.Config))
	} else {
		loaded, err := config.Load(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	slog.SetDefault(cfg.Logging.NewLogger(os.Stderr, c.Verbose))
	return cfg, nil
}

// ExitError carries the exit code of a finished run alongside its error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode reports err and maps it to a process exit code. Run failures were
// already summarized on stdout, so only other errors are printed.
func ExitCode(err error, verbose bool) int {
	if err == nil {
		return ferrors.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	adapter := ferrors.NewCLIErrorAdapter(verbose, slog.Default())
	_, _ = fmt.Fprintln(os.Stderr, adapter.FormatError(err))
	return adapter.ExitCodeFor(err)
}
