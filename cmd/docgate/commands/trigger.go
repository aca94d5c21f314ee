package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// TriggerCmd implements the 'trigger' command.
type TriggerCmd struct {
	EventFlags `embed:""`

	Quiet bool `short:"q" help:"Print nothing; exit 0 when the event matches and 3 otherwise"`
}

// ExitNoMatch is returned by 'trigger' when the event would not start a run.
const ExitNoMatch = 3

func (t *TriggerCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(true)
	if err != nil {
		return err
	}
	ev := t.event(cfg)
	evaluator := trigger.NewEvaluator(cfg.Trigger.Events, cfg.Trigger.Branches).WithLogger(slog.Default())
	matched := evaluator.Evaluate(ev)

	if !t.Quiet {
		verdict := "run"
		if !matched {
			verdict = "ignore"
		}
		_, _ = fmt.Fprintf(g.stdout(), "%s %s on branch %q\n", verdict, ev.Kind, ev.Branch)
	}
	if !matched {
		return &ExitError{Code: ExitNoMatch}
	}
	return nil
}
