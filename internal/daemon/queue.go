package daemon

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// ErrQueueFull is returned when the run queue has no free slot.
var ErrQueueFull = errors.DaemonError("run queue is full").Build()

// ErrQueueClosed is returned after the queue has been stopped.
var ErrQueueClosed = errors.DaemonError("run queue is closed").Build()

// QueuedRun is a run waiting for, or held by, the worker.
type QueuedRun struct {
	ID       string        `json:"run_id"`
	Event    trigger.Event `json:"event"`
	QueuedAt time.Time     `json:"queued_at"`
}

// RunQueue feeds runs to a single worker so no two runs ever overlap.
type RunQueue struct {
	jobs chan QueuedRun

	mu      sync.Mutex
	pending map[string]QueuedRun
	active  *QueuedRun
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunQueue creates a queue holding at most size waiting runs.
func NewRunQueue(size int) *RunQueue {
	if size <= 0 {
		size = 16
	}
	return &RunQueue{
		jobs:    make(chan QueuedRun, size),
		pending: make(map[string]QueuedRun),
	}
}

// Enqueue adds a run for ev and returns its ID. It never blocks.
func (q *RunQueue) Enqueue(ev trigger.Event) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	job := QueuedRun{ID: uuid.NewString(), Event: ev, QueuedAt: time.Now().UTC()}
	select {
	case q.jobs <- job:
		q.pending[job.ID] = job
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Start runs the worker until Stop. exec receives a context canceled by Stop.
func (q *RunQueue) Start(ctx context.Context, exec func(ctx context.Context, job QueuedRun)) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-q.jobs:
				q.mu.Lock()
				delete(q.pending, job.ID)
				q.active = &job
				q.mu.Unlock()

				exec(ctx, job)

				q.mu.Lock()
				q.active = nil
				q.mu.Unlock()
			}
		}
	}()
}

// Stop cancels the active run, drops waiting runs and waits for the worker.
func (q *RunQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	if q.cancel == nil {
		return nil
	}
	q.cancel()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of waiting runs.
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Cap is the number of runs that may wait at once.
func (q *RunQueue) Cap() int { return cap(q.jobs) }

// Pending returns waiting runs, oldest first.
func (q *RunQueue) Pending() []QueuedRun {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedRun, 0, len(q.pending))
	for _, j := range q.pending {
		out = append(out, j)
	}
	slices.SortFunc(out, func(a, b QueuedRun) int { return a.QueuedAt.Compare(b.QueuedAt) })
	return out
}

// Lookup reports a waiting run by ID.
func (q *RunQueue) Lookup(id string) (QueuedRun, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.pending[id]
	return j, ok
}

// Active returns the run held by the worker, if any.
func (q *RunQueue) Active() (QueuedRun, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		return QueuedRun{}, false
	}
	return *q.active, true
}
