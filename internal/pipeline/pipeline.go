// Package pipeline runs the four-step documentation verification sequence:
// checkout, provision, build verification and link verification.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docgate/internal/checkout"
	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/linkcheck"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/process"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

// Pipeline wires the steps to their implementations for one configuration.
type Pipeline struct {
	cfg        *config.Config
	runner     process.Runner
	console    io.Writer
	workspaces *workspace.Manager
	checkouter *checkout.Checkouter
	sourceDir  string

	linkPublisher linkcheck.Publisher
	linkCache     linkcheck.Cache
	httpClient    *http.Client

	observers Observers
	logger    *slog.Logger
}

// New creates a Pipeline. console receives tool output and step verdicts.
func New(cfg *config.Config, runner process.Runner, console io.Writer) *Pipeline {
	if console == nil {
		console = io.Discard
	}
	return &Pipeline{
		cfg:        cfg,
		runner:     runner,
		console:    console,
		workspaces: workspace.NewManager(cfg.Workspace.BaseDir, cfg.Workspace.Keep),
		checkouter: checkout.New(nil),
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger used for the pipeline and its steps.
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	if l != nil {
		p.logger = l
		p.workspaces.WithLogger(l)
		p.checkouter.WithLogger(l)
	}
	return p
}

// WithSourceDir verifies an existing working tree instead of checking out the repository.
func (p *Pipeline) WithSourceDir(dir string) *Pipeline {
	p.sourceDir = dir
	return p
}

// WithObserver appends an observer.
func (p *Pipeline) WithObserver(obs ...Observer) *Pipeline {
	p.observers = append(p.observers, obs...)
	return p
}

// WithLinkPublisher sets the destination of broken link events.
func (p *Pipeline) WithLinkPublisher(pub linkcheck.Publisher) *Pipeline {
	p.linkPublisher = pub
	return p
}

// WithLinkCache sets the external link result cache used in native mode.
func (p *Pipeline) WithLinkCache(c linkcheck.Cache) *Pipeline {
	p.linkCache = c
	return p
}

// WithHTTPClient overrides the client used for external link checks.
func (p *Pipeline) WithHTTPClient(hc *http.Client) *Pipeline {
	p.httpClient = hc
	return p
}

// Steps returns the step definitions in execution order.
func (p *Pipeline) Steps() []StepDef {
	return []StepDef{
		{Name: StepCheckout, Fn: p.checkoutStep},
		{Name: StepProvision, Fn: p.provisionStep},
		{Name: StepBuildVerify, Fn: p.buildStep},
		{Name: StepLinkVerify, Fn: p.linkStep},
	}
}

// Execute performs one run for ev. The returned report is always non-nil;
// the error is the failing step's *StepError.
func (p *Pipeline) Execute(ctx context.Context, ev trigger.Event) (*RunReport, error) {
	return p.execute(ctx, uuid.NewString(), ev, p.Steps())
}

// ExecuteWithID is Execute with a caller-chosen run ID (used by the daemon
// so queued runs can be looked up before they start).
func (p *Pipeline) ExecuteWithID(ctx context.Context, runID string, ev trigger.Event) (*RunReport, error) {
	return p.execute(ctx, runID, ev, p.Steps())
}

func (p *Pipeline) execute(ctx context.Context, runID string, ev trigger.Event, steps []StepDef) (*RunReport, error) {
	if ev.Repository == "" {
		ev.Repository = p.cfg.Repository.Name
	}
	report := newRunReport(runID, ev, steps)
	run := &Run{
		ID:     runID,
		Event:  ev,
		Report: report,
		Logger: p.logger.With(logfields.RunID(runID)),
	}
	run.Logger.Info("Pipeline run started",
		logfields.Event(string(ev.Kind)),
		logfields.Branch(ev.Branch),
		logfields.Revision(ev.Revision))

	p.observers.OnRunStart(report)
	err := RunSteps(ctx, run, steps, p.observers)

	if run.Workspace != nil {
		if cerr := run.Workspace.Cleanup(); cerr != nil {
			run.Logger.Warn("Workspace cleanup failed", logfields.Error(cerr))
		}
	}

	run.Logger.Info("Pipeline run finished",
		logfields.Outcome(string(report.Outcome)),
		logfields.ExitCode(report.ExitCode()),
		logfields.Duration(report.Duration()))
	p.observers.OnRunComplete(report)
	return report, err
}
