// Package provision installs the documentation dependency group with the external package manager.
package provision

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/config"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/process"
)

// VirtualenvEnv disables virtual environment creation for poetry-compatible tools.
const VirtualenvEnv = "POETRY_VIRTUALENVS_CREATE"

// Provisioner runs the package manager.
type Provisioner struct {
	cfg    config.ProvisionConfig
	runner process.Runner
	logger *slog.Logger
}

// New creates a provisioner.
func New(cfg config.ProvisionConfig, runner process.Runner) *Provisioner {
	return &Provisioner{cfg: cfg, runner: runner, logger: slog.Default()}
}

// WithLogger sets the logger.
func (p *Provisioner) WithLogger(l *slog.Logger) *Provisioner {
	if l != nil {
		p.logger = l
	}
	return p
}

// Commands returns the invocations Provision will run, in order.
func (p *Provisioner) Commands(dir string) []process.Command {
	env := map[string]string{}
	for k, v := range p.cfg.Env {
		env[k] = v
	}

	var cmds []process.Command
	if p.cfg.VirtualenvDisabled() {
		env[VirtualenvEnv] = "false"
		cmds = append(cmds, process.Command{
			Name: p.cfg.Command,
			Args: []string{"config", "virtualenvs.create", "false", "--local"},
			Dir:  dir,
			Env:  env,
		})
	}

	args := []string{"install"}
	if len(p.cfg.Extras) > 0 {
		args = append(args, "--extras", strings.Join(p.cfg.Extras, " "))
	}
	args = append(args, p.cfg.ExtraArgs...)
	cmds = append(cmds, process.Command{Name: p.cfg.Command, Args: args, Dir: dir, Env: env})
	return cmds
}

// Provision installs dependencies into dir's environment. Any non-zero exit is fatal.
func (p *Provisioner) Provision(ctx context.Context, dir string) ([]*process.Result, error) {
	if p.cfg.Skip {
		p.logger.Info("Dependency provisioning skipped")
		return nil, nil
	}

	var results []*process.Result
	for _, cmd := range p.Commands(dir) {
		p.logger.Info("Provisioning dependencies", logfields.Command(cmd.String()))
		res, err := p.runner.Run(ctx, cmd)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			return results, classify(err, cmd, res)
		}
	}
	return results, nil
}

func classify(err error, cmd process.Command, res *process.Result) error {
	msg := "dependency installation failed"
	if errors.Is(err, process.ErrBinaryNotFound) {
		msg = "package manager not found"
	}
	b := ferrors.WrapError(err, ferrors.CategoryProvision, msg).
		Fatal().
		WithContext("command", cmd.String())
	if res != nil {
		b = b.WithContext("exit_code", res.ExitCode)
	}
	return b.Build()
}
