package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
)

// Observer receives callbacks around step execution and the run lifecycle.
type Observer interface {
	OnRunStart(report *RunReport)
	OnStepStart(report *RunReport, step StepName)
	OnStepComplete(report *RunReport, result StepResult)
	OnRunComplete(report *RunReport)
}

// NoopObserver is a no-op implementation.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(*RunReport)                 {}
func (NoopObserver) OnStepStart(*RunReport, StepName)      {}
func (NoopObserver) OnStepComplete(*RunReport, StepResult) {}
func (NoopObserver) OnRunComplete(*RunReport)              {}

// Observers fans callbacks out to every member in order.
type Observers []Observer

func (o Observers) OnRunStart(report *RunReport) {
	for _, ob := range o {
		ob.OnRunStart(report)
	}
}

func (o Observers) OnStepStart(report *RunReport, step StepName) {
	for _, ob := range o {
		ob.OnStepStart(report, step)
	}
}

func (o Observers) OnStepComplete(report *RunReport, result StepResult) {
	for _, ob := range o {
		ob.OnStepComplete(report, result)
	}
}

func (o Observers) OnRunComplete(report *RunReport) {
	for _, ob := range o {
		ob.OnRunComplete(report)
	}
}

// RecorderObserver adapts metrics.Recorder into an Observer.
type RecorderObserver struct {
	NoopObserver
	Recorder metrics.Recorder
}

func (r RecorderObserver) OnStepComplete(_ *RunReport, result StepResult) {
	if r.Recorder == nil {
		return
	}
	if result.Status != StatusNotRun {
		r.Recorder.ObserveStepDuration(string(result.Name), result.Duration)
	}
	r.Recorder.IncStepResult(string(result.Name), metrics.ResultLabel(result.Status))
}

func (r RecorderObserver) OnRunComplete(report *RunReport) {
	if r.Recorder == nil {
		return
	}
	r.Recorder.ObserveRunDuration(report.Duration())
	r.Recorder.IncRunOutcome(metrics.OutcomeLabel(report.Outcome))
	if report.Links != nil {
		r.Recorder.AddBrokenLinks(report.Links.BrokenInternal, report.Links.BrokenExternal)
	}
}

// ConsoleObserver prints a step summary table when a run completes.
type ConsoleObserver struct {
	NoopObserver
	Out io.Writer
}

func (c ConsoleObserver) OnRunComplete(report *RunReport) {
	if c.Out == nil {
		return
	}
	WriteSummary(c.Out, report)
}

// WriteSummary renders the per-step outcome of a run.
func WriteSummary(w io.Writer, report *RunReport) {
	_, _ = fmt.Fprintf(w, "\nRun %s (%s", report.RunID, report.Event.Kind)
	if report.Event.Branch != "" {
		_, _ = fmt.Fprintf(w, " %s", report.Event.Branch)
	}
	if report.Revision != "" {
		_, _ = fmt.Fprintf(w, " @ %s", shortRevision(report.Revision))
	}
	_, _ = fmt.Fprintln(w, ")")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, st := range report.Steps {
		dur := "-"
		if st.Status.Terminal() && st.Status != StatusNotRun {
			dur = st.Duration.Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", st.Name, st.Status, dur)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "Outcome: %s (exit %d)\n", report.Outcome, report.ExitCode())
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// RunPublisher receives completed run reports.
type RunPublisher interface {
	PublishRunEvent(ctx context.Context, payload any) error
}

// PublishObserver publishes every completed run report.
type PublishObserver struct {
	NoopObserver
	Publisher RunPublisher
	Logger    *slog.Logger
}

func (p PublishObserver) OnRunComplete(report *RunReport) {
	if p.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Publisher.PublishRunEvent(ctx, report); err != nil && p.Logger != nil {
		p.Logger.Warn("Failed to publish run event", logfields.RunID(report.RunID), logfields.Error(err))
	}
}
