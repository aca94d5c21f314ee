package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// RunSteps executes steps in order. The first failing step stops the run:
// it is marked failed (or canceled when ctx is done) and every later step
// is marked not_run. The returned error is the failing step's *StepError.
func RunSteps(ctx context.Context, run *Run, steps []StepDef, obs Observer) error {
	if obs == nil {
		obs = NoopObserver{}
	}
	log := run.Logger
	if log == nil {
		log = slog.Default()
	}
	report := run.Report

	var stepErr *StepError
	for i, st := range steps {
		res := &report.Steps[i]

		if stepErr != nil {
			res.Status = StatusNotRun
			obs.OnStepComplete(report, *res)
			continue
		}

		if err := ctx.Err(); err != nil {
			stepErr = &StepError{Step: st.Name, Canceled: true, Err: err}
			res.Status = StatusCanceled
			res.Error = err.Error()
			res.err = err
			obs.OnStepComplete(report, *res)
			continue
		}

		res.Status = StatusRunning
		run.current = res
		obs.OnStepStart(report, st.Name)
		log.Info("Step started", logfields.Step(string(st.Name)))

		t0 := time.Now()
		err := st.Fn(ctx, run)
		res.Duration = time.Since(t0)
		run.current = nil

		switch {
		case err == nil:
			res.Status = StatusPassed
			log.Info("Step passed", logfields.Step(string(st.Name)), logfields.Duration(res.Duration))
		case ctx.Err() != nil:
			res.Status = StatusCanceled
			res.Error = err.Error()
			res.err = err
			stepErr = &StepError{Step: st.Name, Canceled: true, Err: err}
			log.Warn("Step canceled", logfields.Step(string(st.Name)), logfields.Error(err))
		default:
			res.Status = StatusFailed
			res.Error = err.Error()
			res.err = err
			if res.ExitCode == 0 {
				res.ExitCode = 1
			}
			stepErr = &StepError{Step: st.Name, Err: err}
			log.Error("Step failed", logfields.Step(string(st.Name)), logfields.Duration(res.Duration), logfields.Error(err))
		}
		obs.OnStepComplete(report, *res)
	}

	report.finish()
	if stepErr != nil {
		return stepErr
	}
	return nil
}
