package pipeline

import (
	"time"

	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/linkcheck"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Outcome is the final state of a run.
type Outcome string

const (
	OutcomeRunning  Outcome = "running"
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// ExitCanceled is the exit code of a canceled run (128 + SIGINT).
const ExitCanceled = 130

// RunReport is the record of one pipeline run.
type RunReport struct {
	RunID      string             `json:"run_id"`
	Event      trigger.Event      `json:"event"`
	Revision   string             `json:"revision,omitempty"`
	Steps      []StepResult       `json:"steps"`
	Outcome    Outcome            `json:"outcome"`
	Exit       int                `json:"exit_code"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
	Links      *linkcheck.Summary `json:"links,omitempty"`
}

func newRunReport(runID string, ev trigger.Event, steps []StepDef) *RunReport {
	r := &RunReport{
		RunID:     runID,
		Event:     ev,
		Outcome:   OutcomeRunning,
		StartedAt: time.Now().UTC(),
		Steps:     make([]StepResult, len(steps)),
	}
	for i, st := range steps {
		r.Steps[i] = StepResult{Name: st.Name, Status: StatusPending}
	}
	return r
}

// Step returns the result for name, or nil.
func (r *RunReport) Step(name StepName) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// FailedStep returns the step that ended the run early, or nil for a successful run.
func (r *RunReport) FailedStep() *StepResult {
	for i := range r.Steps {
		if s := r.Steps[i].Status; s == StatusFailed || s == StatusCanceled {
			return &r.Steps[i]
		}
	}
	return nil
}

// Duration is the wall time of the run so far.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err returns the error of the failing step, or nil.
func (r *RunReport) Err() error {
	if st := r.FailedStep(); st != nil {
		return st.err
	}
	return nil
}

// ExitCode is zero iff every step passed. Failed runs map the failing
// step's error category to an exit code. Finished reports return the code
// recorded when they finished, so decoded reports keep it.
func (r *RunReport) ExitCode() int {
	if !r.FinishedAt.IsZero() {
		return r.Exit
	}
	return r.exitCode()
}

func (r *RunReport) exitCode() int {
	switch r.Outcome {
	case OutcomeSuccess:
		return ferrors.ExitOK
	case OutcomeCanceled:
		return ExitCanceled
	}
	if err := r.Err(); err != nil {
		return ferrors.ExitCodeOf(err)
	}
	return ferrors.ExitGeneral
}

func (r *RunReport) finish() {
	r.FinishedAt = time.Now().UTC()
	r.Outcome = outcomeOf(r.Steps)
	r.Exit = r.exitCode()
}

func outcomeOf(steps []StepResult) Outcome {
	outcome := OutcomeSuccess
	for _, st := range steps {
		switch st.Status {
		case StatusCanceled:
			return OutcomeCanceled
		case StatusFailed, StatusPending, StatusRunning, StatusNotRun:
			outcome = OutcomeFailed
		}
	}
	return outcome
}
