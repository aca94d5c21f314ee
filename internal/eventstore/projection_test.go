package eventstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// runPipeline drives the observer through a run whose build step fails.
func runPipeline(t *testing.T, obs pipeline.Observer) *pipeline.RunReport {
	t.Helper()
	steps := []pipeline.StepDef{
		{Name: pipeline.StepCheckout, Fn: func(_ context.Context, run *pipeline.Run) error {
			run.Report.Revision = "abc123"
			return nil
		}},
		{Name: pipeline.StepProvision, Fn: func(context.Context, *pipeline.Run) error { return nil }},
		{Name: pipeline.StepBuildVerify, Fn: func(context.Context, *pipeline.Run) error {
			return ferrors.BuildError("documentation build reported 1 warning(s) and 0 error(s)").Build()
		}},
		{Name: pipeline.StepLinkVerify, Fn: func(context.Context, *pipeline.Run) error { return nil }},
	}
	report := &pipeline.RunReport{
		RunID:     "run-42",
		Event:     trigger.PushEvent("refs/heads/main", "abc123"),
		StartedAt: time.Now(),
	}
	for _, st := range steps {
		report.Steps = append(report.Steps, pipeline.StepResult{Name: st.Name, Status: pipeline.StatusPending})
	}
	run := &pipeline.Run{ID: report.RunID, Event: report.Event, Report: report}

	obs.OnRunStart(report)
	err := pipeline.RunSteps(context.Background(), run, steps, obs)
	require.Error(t, err)
	obs.OnRunComplete(report)
	return report
}

func TestHistoryObserver_RecordsRunInOrder(t *testing.T) {
	store := newStore(t)
	projection := NewRunHistoryProjection(store, 10)
	obs := NewHistoryObserver(store, projection, nil)

	runPipeline(t, obs)

	events, err := store.GetByRunID(t.Context(), "run-42")
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type())
	}
	assert.Equal(t, []string{
		TypeRunStarted,
		TypeStepCompleted, TypeStepCompleted, TypeStepCompleted, TypeStepCompleted,
		TypeRunCompleted,
	}, types)

	summary, ok := projection.GetRun("run-42")
	require.True(t, ok)
	assert.Equal(t, "failed", summary.Status)
	assert.Equal(t, "build_verify", summary.FailedStep)
	assert.Equal(t, ferrors.ExitBuild, summary.ExitCode)
	assert.Equal(t, "abc123", summary.Revision)
	assert.Equal(t, trigger.KindPush, summary.Trigger.Kind)
	assert.Nil(t, projection.GetActiveRun())
	require.Len(t, summary.Steps, 4)
	assert.Equal(t, pipeline.StatusNotRun, summary.Steps[3].Status)
}

func TestRunHistoryProjection_Rebuild(t *testing.T) {
	store := newStore(t)
	runPipeline(t, NewHistoryObserver(store, nil, nil))

	projection := NewRunHistoryProjection(store, 10)
	require.NoError(t, projection.Rebuild(t.Context()))

	history := projection.GetHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "run-42", history[0].RunID)
	require.NotNil(t, history[0].Report)
	assert.Equal(t, pipeline.OutcomeFailed, history[0].Report.Outcome)
	assert.False(t, projection.LastSyncTime().IsZero())
}

func TestRunHistoryProjection_ActiveRun(t *testing.T) {
	store := newStore(t)
	projection := NewRunHistoryProjection(store, 10)

	started, err := NewRunStarted("run-1", trigger.ManualEvent("main", ""))
	require.NoError(t, err)
	projection.Apply(started)

	active := projection.GetActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "run-1", active.RunID)
	assert.Empty(t, projection.GetHistory())
}

func TestRunHistoryProjection_BoundedHistory(t *testing.T) {
	store := newStore(t)
	projection := NewRunHistoryProjection(store, 2)

	for _, id := range []string{"a", "b", "c"} {
		started, err := NewRunStarted(id, trigger.ManualEvent("main", ""))
		require.NoError(t, err)
		projection.Apply(started)
		done, err := NewRunCompleted(&pipeline.RunReport{RunID: id, Outcome: pipeline.OutcomeSuccess})
		require.NoError(t, err)
		projection.Apply(done)
	}

	history := projection.GetHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].RunID)
	_, ok := projection.GetRun("a")
	assert.False(t, ok, "runs outside the bounded history are pruned")
}

func TestLoadAndListRuns(t *testing.T) {
	store := newStore(t)
	runPipeline(t, NewHistoryObserver(store, nil, nil))

	run, err := LoadRun(t.Context(), store, "run-42")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)

	runs, err := ListRuns(t.Context(), store, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-42", runs[0].RunID)
}

type failingStore struct{ Store }

func (failingStore) Append(context.Context, string, string, []byte, map[string]string) error {
	return errors.New("disk full")
}

func TestHistoryObserver_StoreFailureDoesNotPanic(t *testing.T) {
	obs := NewHistoryObserver(failingStore{}, nil, nil)
	assert.NotPanics(t, func() { runPipeline(t, obs) })
}
