package pipeline

import (
	"context"

	"git.home.luguber.info/inful/docgate/internal/checkout"
	"git.home.luguber.info/inful/docgate/internal/docgen"
	"git.home.luguber.info/inful/docgate/internal/linkcheck"
	"git.home.luguber.info/inful/docgate/internal/provision"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

func (p *Pipeline) checkoutStep(ctx context.Context, run *Run) error {
	if p.sourceDir != "" {
		ws, err := workspace.Borrow(p.sourceDir)
		if err != nil {
			return err
		}
		run.Workspace = ws
		res, err := checkout.Open(ws.SourceDir())
		if err != nil {
			return err
		}
		p.recordCheckout(run, res)
		return nil
	}

	ws, err := p.workspaces.Create(run.ID)
	if err != nil {
		return err
	}
	run.Workspace = ws

	repo := p.cfg.Repository
	res, err := p.checkouter.Checkout(ctx, ws.SourceDir(), checkout.Request{
		URL:      repo.URL,
		Ref:      checkoutRef(run.Event.Ref, run.Event.Branch, repo.Branch),
		Revision: run.Event.Revision,
		Depth:    repo.Depth,
		Auth:     repo.Auth,
	})
	if err != nil {
		return err
	}
	p.recordCheckout(run, res)
	return nil
}

func (p *Pipeline) recordCheckout(run *Run, res *checkout.Result) {
	run.SourceDir = res.Path
	run.Revision = res.Revision
	run.Branch = res.Branch
	if run.Branch == "" {
		run.Branch = run.Event.Branch
	}
	run.Report.Revision = res.Revision
	run.AddDiagnostics("revision " + res.Revision)
}

// checkoutRef picks the ref to fetch: the event's own ref, else its branch, else the configured branch.
func checkoutRef(ref, branch, fallback string) string {
	switch {
	case ref != "":
		return ref
	case branch != "":
		return branch
	default:
		return fallback
	}
}

func (p *Pipeline) provisionStep(ctx context.Context, run *Run) error {
	results, err := provision.New(p.cfg.Provision, p.runner).
		WithLogger(run.Logger).
		Provision(ctx, run.SourceDir)
	if n := len(results); n > 0 && results[n-1] != nil {
		run.SetExitCode(results[n-1].ExitCode)
	}
	return err
}

func (p *Pipeline) buildStep(ctx context.Context, run *Run) error {
	report, err := docgen.NewVerifier(p.cfg.Generator, p.runner, p.console).
		WithLogger(run.Logger).
		Verify(ctx, run.SourceDir)
	if report != nil {
		run.SetExitCode(report.ExitCode)
		for _, d := range report.Diagnostics {
			run.AddDiagnostics(d.String())
		}
	}
	return err
}

func (p *Pipeline) linkStep(ctx context.Context, run *Run) error {
	v, err := linkcheck.NewVerifier(p.cfg.LinkCheck, p.cfg.Generator, p.runner, p.console)
	if err != nil {
		return err
	}
	v.WithLogger(run.Logger).WithHTTPClient(p.httpClient)
	if p.linkPublisher != nil {
		v.WithPublisher(p.linkPublisher)
	}
	if p.linkCache != nil {
		v.WithCache(p.linkCache)
	}

	report, err := v.Verify(ctx, run.SourceDir, linkcheck.RunContext{
		RunID:      run.ID,
		Repository: run.Event.Repository,
		Revision:   run.Revision,
		Branch:     run.Branch,
	})
	if report != nil {
		summary := report.Summary
		run.Report.Links = &summary
		for _, r := range report.Broken() {
			run.AddDiagnostics(r.String())
		}
	}
	return err
}
