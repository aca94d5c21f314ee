package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/linkcheck"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// EventFlags describe the event a command acts on.
type EventFlags struct {
	Event    string `help:"Event kind (${enum})" enum:"push,pull_request,manual,schedule" default:"manual"`
	Branch   string `short:"b" help:"Branch the event refers to (target branch for pull_request); defaults to repository.branch"`
	Ref      string `help:"Git ref to check out, e.g. refs/pull/7/head"`
	Revision string `short:"r" help:"Commit to verify" env:"DOCGATE_REVISION"`
}

// event builds the trigger event described by the flags.
func (f EventFlags) event(cfg *config.Config) trigger.Event {
	branch := f.Branch
	if branch == "" {
		branch = cfg.Repository.Branch
	}

	var ev trigger.Event
	switch trigger.Kind(f.Event) {
	case trigger.KindPush:
		ref := f.Ref
		if ref == "" {
			ref = "refs/heads/" + branch
		}
		ev = trigger.PushEvent(ref, f.Revision)
	case trigger.KindPullRequest:
		ev = trigger.PullRequestEvent(branch, f.Revision)
	case trigger.KindSchedule:
		ev = trigger.ScheduledEvent(branch)
		ev.Revision = f.Revision
	default:
		ev = trigger.ManualEvent(branch, f.Revision)
	}
	if f.Ref != "" {
		ev.Ref = f.Ref
	}
	ev.Repository = cfg.Repository.Name
	return ev
}

// RunCmd implements the 'run' command.
type RunCmd struct {
	EventFlags `embed:""`

	SourceDir string `name:"source-dir" help:"Verify an existing working tree instead of cloning" type:"existingdir"`
	RepoURL   string `name:"repo-url" help:"Repository to clone (overrides repository.url)"`
	Force     bool   `help:"Run even when the trigger allow-list rejects the event"`
	NoHistory bool   `name:"no-history" help:"Do not record the run in the history store"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(true)
	if err != nil {
		return err
	}
	if r.RepoURL != "" {
		cfg.Repository.URL = r.RepoURL
		if cfg.Repository.Name == "" {
			cfg.Repository.Name = strings.TrimSuffix(path.Base(r.RepoURL), ".git")
		}
	}
	if r.SourceDir == "" && cfg.Repository.URL == "" {
		return ferrors.ValidationError("no repository to verify: set repository.url, --repo-url or --source-dir").Build()
	}

	out := g.stdout()
	logger := slog.Default()
	ev := r.event(cfg)

	evaluator := trigger.NewEvaluator(cfg.Trigger.Events, cfg.Trigger.Branches).WithLogger(logger)
	if !evaluator.Evaluate(ev) && !r.Force {
		if root.Verbose {
			_, _ = fmt.Fprintf(out, "No run: %s on branch %q does not match the trigger allow-list.\n", ev.Kind, ev.Branch)
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(cfg, g.runner(out), out).WithLogger(logger)
	if r.SourceDir != "" {
		p.WithSourceDir(r.SourceDir)
	}
	closers, err := r.wireObservers(ctx, cfg, p, out, logger)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err != nil {
		return err
	}

	report, err := p.Execute(ctx, ev)
	if err != nil {
		return &ExitError{Code: report.ExitCode(), Err: err}
	}
	return nil
}

// wireObservers attaches the console summary, the history store and NATS.
// The returned closers must be closed after the run.
func (r *RunCmd) wireObservers(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, out io.Writer, logger *slog.Logger) ([]io.Closer, error) {
	var closers []io.Closer
	p.WithObserver(pipeline.ConsoleObserver{Out: out})

	if cfg.History.Enabled && !r.NoHistory {
		store, err := eventstore.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return closers, err
		}
		closers = append(closers, store)
		p.WithObserver(eventstore.NewHistoryObserver(store, nil, logger))
	}

	if cfg.NATS != nil {
		client, err := linkcheck.NewNATSClient(ctx, cfg.NATS)
		if err != nil {
			logger.Warn("NATS unavailable, continuing without publishing", logfields.URL(cfg.NATS.URL), logfields.Error(err))
			return closers, nil
		}
		closers = append(closers, client)
		p.WithObserver(pipeline.PublishObserver{Publisher: client, Logger: logger}).
			WithLinkPublisher(client).
			WithLinkCache(client)
	}
	return closers, nil
}
