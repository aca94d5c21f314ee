package pipeline

import (
	"context"
	"fmt"
	"time"
)

// StepName identifies a pipeline step.
type StepName string

// The four steps, in execution order.
const (
	StepCheckout    StepName = "checkout"
	StepProvision   StepName = "provision"
	StepBuildVerify StepName = "build_verify"
	StepLinkVerify  StepName = "link_verify"
)

// StepStatus is the state of one step within a run.
type StepStatus string

const (
	StatusPending  StepStatus = "pending"
	StatusRunning  StepStatus = "running"
	StatusPassed   StepStatus = "passed"
	StatusFailed   StepStatus = "failed"
	StatusCanceled StepStatus = "canceled"
	StatusNotRun   StepStatus = "not_run"
)

// Terminal reports whether the status can no longer change.
func (s StepStatus) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusCanceled, StatusNotRun:
		return true
	default:
		return false
	}
}

// StepFunc performs one step. It records details on the run and returns a
// non-nil error when the step fails.
type StepFunc func(ctx context.Context, run *Run) error

// StepDef pairs a step name with its implementation.
type StepDef struct {
	Name StepName
	Fn   StepFunc
}

// StepResult is the recorded outcome of one step.
type StepResult struct {
	Name        StepName      `json:"name"`
	Status      StepStatus    `json:"status"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`

	err error
}

// Err returns the error that failed or canceled the step.
func (r *StepResult) Err() error { return r.err }

// StepError wraps the error of a failed or canceled step.
type StepError struct {
	Step     StepName
	Canceled bool
	Err      error
}

func (e *StepError) Error() string {
	if e.Canceled {
		return fmt.Sprintf("step %s canceled: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
