package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Event type names.
const (
	TypeRunStarted    = "RunStarted"
	TypeStepCompleted = "StepCompleted"
	TypeRunCompleted  = "RunCompleted"
)

// RunStarted is emitted when a triggered run begins.
type RunStarted struct {
	BaseEvent
	Trigger trigger.Event `json:"trigger"`
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(runID string, ev trigger.Event) (*RunStarted, error) {
	payload, err := marshal(runID, TypeRunStarted, map[string]any{"trigger": ev})
	if err != nil {
		return nil, err
	}
	return &RunStarted{
		BaseEvent: newBase(runID, TypeRunStarted, payload),
		Trigger:   ev,
	}, nil
}

// StepCompleted is emitted when a step reaches a terminal status.
type StepCompleted struct {
	BaseEvent
	Step pipeline.StepResult `json:"step"`
}

// NewStepCompleted creates a StepCompleted event.
func NewStepCompleted(runID string, result pipeline.StepResult) (*StepCompleted, error) {
	payload, err := marshal(runID, TypeStepCompleted, map[string]any{"step": result})
	if err != nil {
		return nil, err
	}
	return &StepCompleted{
		BaseEvent: newBase(runID, TypeStepCompleted, payload),
		Step:      result,
	}, nil
}

// RunCompleted is emitted once per run and carries the full run report.
type RunCompleted struct {
	BaseEvent
	Report pipeline.RunReport `json:"report"`
}

// NewRunCompleted creates a RunCompleted event.
func NewRunCompleted(report *pipeline.RunReport) (*RunCompleted, error) {
	payload, err := marshal(report.RunID, TypeRunCompleted, map[string]any{
		"outcome":   report.Outcome,
		"exit_code": report.ExitCode(),
		"report":    report,
	})
	if err != nil {
		return nil, err
	}
	return &RunCompleted{
		BaseEvent: newBase(report.RunID, TypeRunCompleted, payload),
		Report:    *report,
	}, nil
}

func newBase(runID, eventType string, payload []byte) BaseEvent {
	return BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

func marshal(runID, eventType string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return payload, nil
}
