// Package daemon runs docgate as a long-lived service: it receives forge
// webhooks, queues accepted runs on a single worker, schedules periodic runs
// and serves an admin HTTP surface with health, metrics and run history.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/linkcheck"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/process"
	"git.home.luguber.info/inful/docgate/internal/trigger"
)

// Status is the lifecycle state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

const historySize = 200

// Executor performs one pipeline run under a daemon-assigned run ID.
type Executor interface {
	ExecuteWithID(ctx context.Context, runID string, ev trigger.Event) (*pipeline.RunReport, error)
}

// ExecutorFactory builds an Executor for cfg. obs must receive every run and
// step notification so history and metrics stay current.
type ExecutorFactory func(cfg *config.Config, obs pipeline.Observer) Executor

// Option customizes a Daemon.
type Option func(*Daemon)

// WithExecutorFactory replaces the default pipeline executor.
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(d *Daemon) { d.factory = f }
}

// WithConsole sets the writer receiving external tool output.
func WithConsole(w io.Writer) Option {
	return func(d *Daemon) { d.console = w }
}

// WithLogger sets the daemon logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// Daemon is the long-running docgate service.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configPath string
	evaluator  *trigger.Evaluator
	status     Status
	startTime  time.Time

	logger  *slog.Logger
	console io.Writer
	factory ExecutorFactory

	registry *prom.Registry
	recorder metrics.Recorder
	store    eventstore.Store
	history  *eventstore.RunHistoryProjection
	nats     *linkcheck.NATSClient
	cache    linkcheck.Cache

	queue     *RunQueue
	scheduler *Scheduler
	watcher   *ConfigWatcher
	http      *HTTPServer
}

// New creates a daemon for cfg. configPath enables hot reload when non-empty.
func New(cfg *config.Config, configPath string, opts ...Option) (*Daemon, error) {
	if cfg == nil || cfg.Daemon == nil {
		return nil, ferrors.ConfigError("daemon section is required to run the daemon").Build()
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		status:     StatusStopped,
		logger:     slog.Default(),
		console:    os.Stdout,
		registry:   prom.NewRegistry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.factory == nil {
		d.factory = d.pipelineExecutor
	}

	d.registry.MustRegister(promcollect.NewGoCollector())
	d.registry.MustRegister(promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	d.recorder = metrics.NewPrometheusRecorder(d.registry)
	d.evaluator = trigger.NewEvaluator(cfg.Trigger.Events, cfg.Trigger.Branches).WithLogger(d.logger)
	d.queue = NewRunQueue(cfg.Daemon.QueueSize)

	storePath := ":memory:"
	if cfg.History.Enabled {
		storePath = cfg.History.Path
	}
	store, err := eventstore.NewSQLiteStore(storePath)
	if err != nil {
		return nil, err
	}
	d.store = store
	d.history = eventstore.NewRunHistoryProjection(store, historySize)

	scheduler, err := NewScheduler(d, d.logger)
	if err != nil {
		_ = store.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create scheduler").Build()
	}
	d.scheduler = scheduler
	d.http = NewHTTPServer(d)
	return d, nil
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Status returns the lifecycle state.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Registry exposes the metrics registry served on /metrics.
func (d *Daemon) Registry() *prom.Registry { return d.registry }

// History exposes the run history projection.
func (d *Daemon) History() *eventstore.RunHistoryProjection { return d.history }

// Start brings up history, messaging, the worker, the scheduler, the config
// watcher and finally the HTTP listeners.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.status != StatusStopped {
		d.mu.Unlock()
		return ferrors.DaemonError("daemon already started").WithContext("status", string(d.status)).Build()
	}
	d.status = StatusStarting
	d.startTime = time.Now()
	cfg := d.cfg
	d.mu.Unlock()

	if err := d.history.Rebuild(ctx); err != nil {
		d.logger.Warn("Failed to rebuild run history", logfields.Error(err))
	}
	d.connectNATS(ctx, cfg)

	d.queue.Start(context.WithoutCancel(ctx), d.execute)

	if err := d.scheduler.Schedule(cfg.Daemon.Schedule, cfg.Repository.Branch); err != nil {
		d.abortStart(ctx)
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid schedule").Build()
	}
	d.scheduler.Start(ctx)

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d, d.logger)
		if err == nil {
			err = watcher.Start(context.WithoutCancel(ctx))
		}
		if err != nil {
			d.logger.Warn("Config hot reload disabled", logfields.Error(err))
		} else {
			d.watcher = watcher
		}
	}

	if err := d.http.Start(ctx); err != nil {
		d.abortStart(ctx)
		return err
	}

	d.setStatus(StatusRunning)
	d.logger.Info("Daemon started",
		logfields.Repository(cfg.Repository.Name),
		logfields.Forge(string(cfg.Daemon.Webhook.Forge)))
	return nil
}

// Stop shuts everything down in reverse order. An active run is canceled.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.status == StatusStopped || d.status == StatusStopping {
		d.mu.Unlock()
		return nil
	}
	d.status = StatusStopping
	d.mu.Unlock()

	var errs []error
	if err := d.http.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("config watcher: %w", err))
		}
	}
	if err := d.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := d.queue.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("run queue: %w", err))
	}
	if d.nats != nil {
		if err := d.nats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("history store: %w", err))
	}

	d.setStatus(StatusStopped)
	d.logger.Info("Daemon stopped", slog.String("uptime", time.Since(d.startTime).Round(time.Second).String()))
	return errors.Join(errs...)
}

// Run starts the daemon, blocks until ctx is done, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return d.Stop(stopCtx)
}

// Dispatch evaluates ev against the trigger allow-list and queues a run when
// it matches. An empty run ID means the event was ignored.
func (d *Daemon) Dispatch(ev trigger.Event) (string, error) {
	d.mu.RLock()
	evaluator := d.evaluator
	d.mu.RUnlock()

	accepted := evaluator.Evaluate(ev)
	d.recorder.IncTriggerDecision(string(ev.Kind), accepted)
	if !accepted {
		return "", nil
	}
	return d.Enqueue(ev)
}

// Enqueue queues a run for ev without consulting the trigger allow-list.
func (d *Daemon) Enqueue(ev trigger.Event) (string, error) {
	if ev.Repository == "" {
		ev.Repository = d.Config().Repository.Name
	}
	runID, err := d.queue.Enqueue(ev)
	if err != nil {
		d.logger.Warn("Run rejected", logfields.Event(string(ev.Kind)), logfields.Branch(ev.Branch), logfields.Error(err))
		return "", err
	}
	d.recorder.SetQueueDepth(d.queue.Len())
	d.logger.Info("Run queued",
		logfields.RunID(runID),
		logfields.Event(string(ev.Kind)),
		logfields.Branch(ev.Branch),
		logfields.Revision(ev.Revision))
	return runID, nil
}

// ReloadConfig applies cfg. Listener and webhook endpoint settings cannot
// change without a restart.
func (d *Daemon) ReloadConfig(_ context.Context, cfg *config.Config) error {
	if cfg == nil || cfg.Daemon == nil {
		return ferrors.ConfigError("daemon section is required to run the daemon").Build()
	}

	d.mu.Lock()
	old := d.cfg.Daemon
	if old.HTTP != cfg.Daemon.HTTP {
		d.mu.Unlock()
		return ferrors.ConfigError("daemon.http cannot change while running").Build()
	}
	if old.Webhook.Path != cfg.Daemon.Webhook.Path || old.Webhook.Forge != cfg.Daemon.Webhook.Forge {
		d.mu.Unlock()
		return ferrors.ConfigError("daemon.webhook path and forge cannot change while running").Build()
	}
	d.cfg = cfg
	d.evaluator = trigger.NewEvaluator(cfg.Trigger.Events, cfg.Trigger.Branches).WithLogger(d.logger)
	d.mu.Unlock()

	d.http.SetWebhookSecret(cfg.Daemon.Webhook)
	return d.scheduler.Schedule(cfg.Daemon.Schedule, cfg.Repository.Branch)
}

// abortStart releases everything a failed Start acquired.
func (d *Daemon) abortStart(ctx context.Context) {
	if d.watcher != nil {
		_ = d.watcher.Stop(ctx)
		d.watcher = nil
	}
	_ = d.scheduler.Stop(ctx)
	_ = d.queue.Stop(ctx)
	if d.nats != nil {
		_ = d.nats.Close()
		d.nats = nil
	}
	_ = d.store.Close()
	d.setStatus(StatusStopped)
}

func (d *Daemon) setStatus(s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *Daemon) connectNATS(ctx context.Context, cfg *config.Config) {
	if cfg.NATS == nil {
		return
	}
	client, err := linkcheck.NewNATSClient(ctx, cfg.NATS)
	if err != nil {
		ttl, perr := time.ParseDuration(cfg.NATS.CacheTTL)
		if perr != nil {
			ttl = 24 * time.Hour
		}
		d.cache = linkcheck.NewMemoryCache(ttl)
		d.logger.Warn("NATS unavailable, using in-memory link cache",
			logfields.URL(cfg.NATS.URL), logfields.Error(err))
		return
	}
	d.nats = client
	d.cache = client
}

func (d *Daemon) execute(ctx context.Context, job QueuedRun) {
	d.recorder.SetQueueDepth(d.queue.Len())
	cfg := d.Config()

	observers := pipeline.Observers{
		pipeline.RecorderObserver{Recorder: d.recorder},
		eventstore.NewHistoryObserver(d.store, d.history, d.logger),
	}
	if d.nats != nil {
		observers = append(observers, pipeline.PublishObserver{Publisher: d.nats, Logger: d.logger})
	}

	report, err := d.factory(cfg, observers).ExecuteWithID(ctx, job.ID, job.Event)
	if report == nil {
		d.logger.Error("Run produced no report", logfields.RunID(job.ID), logfields.Error(err))
		return
	}
	if err != nil {
		d.logger.Warn("Run failed",
			logfields.RunID(job.ID),
			logfields.Outcome(string(report.Outcome)),
			logfields.ExitCode(report.ExitCode()),
			logfields.Error(err))
	}
}

func (d *Daemon) pipelineExecutor(cfg *config.Config, obs pipeline.Observer) Executor {
	p := pipeline.New(cfg, process.NewExecRunner(d.console), d.console).
		WithLogger(d.logger).
		WithObserver(obs)
	if d.nats != nil {
		p.WithLinkPublisher(d.nats)
	}
	if d.cache != nil {
		p.WithLinkCache(d.cache)
	}
	return p
}
