package eventstore

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
)

const appendTimeout = 5 * time.Second

// HistoryObserver records pipeline runs in a Store and keeps an optional
// projection current. Store failures are logged; they never fail a run.
type HistoryObserver struct {
	store      Store
	projection *RunHistoryProjection
	logger     *slog.Logger
}

var _ pipeline.Observer = (*HistoryObserver)(nil)

// NewHistoryObserver creates an observer appending to store.
func NewHistoryObserver(store Store, projection *RunHistoryProjection, logger *slog.Logger) *HistoryObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryObserver{store: store, projection: projection, logger: logger}
}

func (h *HistoryObserver) OnRunStart(report *pipeline.RunReport) {
	ev, err := NewRunStarted(report.RunID, report.Event)
	if err != nil {
		h.logger.Warn("Failed to build history event", logfields.RunID(report.RunID), logfields.Error(err))
		return
	}
	h.record(&ev.BaseEvent)
}

func (h *HistoryObserver) OnStepStart(*pipeline.RunReport, pipeline.StepName) {}

func (h *HistoryObserver) OnStepComplete(report *pipeline.RunReport, result pipeline.StepResult) {
	ev, err := NewStepCompleted(report.RunID, result)
	if err != nil {
		h.logger.Warn("Failed to build history event", logfields.RunID(report.RunID), logfields.Error(err))
		return
	}
	h.record(&ev.BaseEvent)
}

func (h *HistoryObserver) OnRunComplete(report *pipeline.RunReport) {
	ev, err := NewRunCompleted(report)
	if err != nil {
		h.logger.Warn("Failed to build history event", logfields.RunID(report.RunID), logfields.Error(err))
		return
	}
	h.record(&ev.BaseEvent)
}

func (h *HistoryObserver) record(ev *BaseEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := h.store.Append(ctx, ev.EventRunID, ev.EventType, ev.EventPayload, nil); err != nil {
		h.logger.Warn("Failed to record history event", logfields.RunID(ev.EventRunID), logfields.Event(ev.EventType), logfields.Error(err))
		return
	}
	if h.projection != nil {
		h.projection.Apply(ev)
	}
}
