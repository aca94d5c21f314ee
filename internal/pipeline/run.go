package pipeline

import (
	"log/slog"

	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

// Run is the mutable state shared by the steps of one pipeline run.
type Run struct {
	ID        string
	Event     trigger.Event
	Workspace *workspace.Workspace
	SourceDir string // checked out working tree
	Revision  string
	Branch    string
	Report    *RunReport
	Logger    *slog.Logger

	current *StepResult
}

// SetExitCode records the exit code of the external tool run by the current step.
func (r *Run) SetExitCode(code int) {
	if r.current != nil {
		r.current.ExitCode = code
	}
}

// AddDiagnostics attaches diagnostic lines to the current step.
func (r *Run) AddDiagnostics(lines ...string) {
	if r.current != nil {
		r.current.Diagnostics = append(r.current.Diagnostics, lines...)
	}
}
