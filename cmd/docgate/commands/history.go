package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/docgate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/report"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	RunID    string `arg:"" optional:"" name:"run-id" help:"Show one run instead of listing"`
	Limit    int    `short:"n" help:"Number of runs to list" default:"20"`
	Markdown bool   `name:"markdown" help:"Print the full Markdown report of the selected run"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(true)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return ferrors.ConfigError("run history is disabled: set history.enabled in the configuration").Build()
	}

	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	out := g.stdout()
	if h.RunID == "" {
		runs, err := eventstore.ListRuns(ctx, store, h.Limit)
		if err != nil {
			return err
		}
		writeRunList(out, runs)
		return nil
	}

	run, err := eventstore.LoadRun(ctx, store, h.RunID)
	if err != nil {
		return err
	}
	if h.Markdown {
		if run.Report == nil {
			return ferrors.NotFoundError("run has not completed").WithContext("run_id", h.RunID).Build()
		}
		_, err = out.Write(report.Markdown(run.Report))
		return err
	}
	if run.Report != nil {
		pipeline.WriteSummary(out, run.Report)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Run %s: %s since %s\n", run.RunID, run.Status, run.StartedAt.Format(time.RFC3339))
	return nil
}

func writeRunList(w io.Writer, runs []*eventstore.RunSummary) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tEVENT\tBRANCH\tSTATUS\tEXIT\tFAILED STEP")
	for _, r := range runs {
		failed := r.FailedStep
		if failed == "" {
			failed = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Trigger.Kind,
			r.Trigger.Branch,
			r.Status,
			r.ExitCode,
			failed)
	}
	_ = tw.Flush()
}
