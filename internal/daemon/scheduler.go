package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Enqueuer accepts an event for a later run.
type Enqueuer interface {
	Enqueue(ev trigger.Event) (string, error)
}

// Scheduler wraps a gocron scheduler holding at most one periodic run job.
type Scheduler struct {
	scheduler gocron.Scheduler
	enqueuer  Enqueuer
	logger    *slog.Logger

	mu    sync.Mutex
	jobID uuid.UUID
}

// NewScheduler creates a scheduler that hands scheduled events to e.
func NewScheduler(e Enqueuer, logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, enqueuer: e, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(context.Context) {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(context.Context) error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Schedule replaces the periodic run job with one built from cfg. A disabled
// cfg only removes the existing job. branch is used when cfg names none.
func (s *Scheduler) Schedule(cfg config.ScheduleConfig, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobID != uuid.Nil {
		if err := s.scheduler.RemoveJob(s.jobID); err != nil {
			s.logger.Warn("Failed to remove previous schedule", logfields.Error(err))
		}
		s.jobID = uuid.Nil
	}
	if !cfg.Enabled() {
		return nil
	}
	if cfg.Branch != "" {
		branch = cfg.Branch
	}

	def, err := jobDefinition(cfg)
	if err != nil {
		return err
	}
	job, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(s.enqueueScheduled, branch),
		gocron.WithName("scheduled-run"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled run job: %w", err)
	}
	s.jobID = job.ID()
	s.logger.Info("Scheduled periodic runs", logfields.Branch(branch),
		slog.String("cron", cfg.Cron), slog.String("interval", cfg.Interval))
	return nil
}

// NextRun reports when the scheduled job fires next.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobID == uuid.Nil {
		return time.Time{}, false
	}
	for _, j := range s.scheduler.Jobs() {
		if j.ID() != s.jobID {
			continue
		}
		next, err := j.NextRun()
		if err != nil {
			return time.Time{}, false
		}
		return next, true
	}
	return time.Time{}, false
}

func jobDefinition(cfg config.ScheduleConfig) (gocron.JobDefinition, error) {
	if cfg.Cron != "" {
		return gocron.CronJob(cfg.Cron, false), nil
	}
	d, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule interval %q: %w", cfg.Interval, err)
	}
	return gocron.DurationJob(d), nil
}

func (s *Scheduler) enqueueScheduled(branch string) {
	runID, err := s.enqueuer.Enqueue(trigger.ScheduledEvent(branch))
	if err != nil {
		s.logger.Error("Failed to enqueue scheduled run", logfields.Branch(branch), logfields.Error(err))
		return
	}
	s.logger.Info("Enqueued scheduled run", logfields.RunID(runID), logfields.Branch(branch))
}
