package eventstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

const runStatusRunning = "running"

// RunSummary is a read model of one run.
type RunSummary struct {
	RunID        string                `json:"run_id"`
	Trigger      trigger.Event         `json:"trigger"`
	Status       string                `json:"status"` // running, success, failed, canceled
	Revision     string                `json:"revision,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	Duration     time.Duration         `json:"duration,omitempty"`
	ExitCode     int                   `json:"exit_code"`
	FailedStep   string                `json:"failed_step,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Steps        []pipeline.StepResult `json:"steps,omitempty"`
	Report       *pipeline.RunReport   `json:"report,omitempty"`
}

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from the events in the store.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary
	history  []*RunSummary // completed runs, newest first
	maxSize  int
	lastSync time.Time
}

// NewRunHistoryProjection creates a projection backed by store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		history: make([]*RunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from every event in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = make([]*RunSummary, 0, p.maxSize)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	slices.SortStableFunc(p.history, func(a, b *RunSummary) int { return b.StartedAt.Compare(a.StartedAt) })
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}

	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{RunID: runID, Status: runStatusRunning, StartedAt: event.Timestamp()}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		summary.StartedAt = event.Timestamp()
		summary.Status = runStatusRunning
		var payload struct {
			Trigger trigger.Event `json:"trigger"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Trigger = payload.Trigger
		}

	case TypeStepCompleted:
		var payload struct {
			Step pipeline.StepResult `json:"step"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Steps = append(summary.Steps, payload.Step)
		}

	case TypeRunCompleted:
		now := event.Timestamp()
		summary.CompletedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		var payload struct {
			Outcome  pipeline.Outcome    `json:"outcome"`
			ExitCode int                 `json:"exit_code"`
			Report   *pipeline.RunReport `json:"report"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Status = string(payload.Outcome)
			summary.ExitCode = payload.ExitCode
			if r := payload.Report; r != nil {
				summary.Report = r
				summary.Revision = r.Revision
				summary.Steps = r.Steps
				if failed := r.FailedStep(); failed != nil {
					summary.FailedStep = string(failed.Name)
					summary.ErrorMessage = failed.Error
				}
			}
		}
		p.addToHistoryLocked(summary)
	}
}

func (p *RunHistoryProjection) addToHistoryLocked(summary *RunSummary) {
	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}
	p.history = append([]*RunSummary{summary}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
}

// pruneRunsLocked drops completed runs that fell out of the bounded history.
// Caller must hold p.mu.
func (p *RunHistoryProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}
	for id, summary := range p.runs {
		if summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// GetHistory returns completed runs, newest first.
func (p *RunHistoryProjection) GetHistory() []*RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*RunSummary, len(p.history))
	copy(result, p.history)
	return result
}

// GetRun returns the summary of one run.
func (p *RunHistoryProjection) GetRun(runID string) (*RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.runs[runID]
	if !exists {
		return nil, false
	}
	cp := *summary
	return &cp, true
}

// GetActiveRun returns the run currently in progress, if any.
func (p *RunHistoryProjection) GetActiveRun() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, summary := range p.runs {
		if summary.Status == runStatusRunning {
			cp := *summary
			return &cp
		}
	}
	return nil
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

// LoadRun replays the events of one run directly from store.
func LoadRun(ctx context.Context, store Store, runID string) (*RunSummary, error) {
	events, err := store.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrRunNotFound
	}
	p := NewRunHistoryProjection(store, 1)
	for _, ev := range events {
		p.applyEventLocked(ev)
	}
	return p.runs[runID], nil
}

// ListRuns loads the most recent runs, newest first.
func ListRuns(ctx context.Context, store Store, limit int) ([]*RunSummary, error) {
	ids, err := store.RunIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	runs := make([]*RunSummary, 0, len(ids))
	for _, id := range ids {
		run, err := LoadRun(ctx, store, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
