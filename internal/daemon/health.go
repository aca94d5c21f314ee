package daemon

import (
	"context"
	"time"

	"git.home.luguber.info/inful/docgate/internal/version"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the result of a single check.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is served on /healthz.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	QueueLen  int           `json:"queue_length"`
	ActiveRun string        `json:"active_run,omitempty"`
	NextRun   *time.Time    `json:"next_scheduled_run,omitempty"`
	Checks    []HealthCheck `json:"checks"`
}

// Health runs all checks. The worst check status wins.
func (d *Daemon) Health(ctx context.Context) *HealthResponse {
	checks := []HealthCheck{d.checkStatus(), d.checkQueue(), d.checkHistory(ctx)}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	resp := &HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		QueueLen:  d.queue.Len(),
		Checks:    checks,
	}
	d.mu.RLock()
	if !d.startTime.IsZero() {
		resp.Uptime = time.Since(d.startTime).Round(time.Second).String()
	}
	d.mu.RUnlock()
	if active, ok := d.queue.Active(); ok {
		resp.ActiveRun = active.ID
	}
	if next, ok := d.scheduler.NextRun(); ok {
		resp.NextRun = &next
	}
	return resp
}

func (d *Daemon) checkStatus() HealthCheck {
	check := HealthCheck{Name: "daemon_status"}
	switch d.Status() {
	case StatusRunning:
		check.Status = HealthStatusHealthy
		check.Message = "Daemon is running normally"
	case StatusStarting:
		check.Status = HealthStatusDegraded
		check.Message = "Daemon is still starting up"
	case StatusStopping:
		check.Status = HealthStatusDegraded
		check.Message = "Daemon is shutting down"
	default:
		check.Status = HealthStatusUnhealthy
		check.Message = "Daemon is not running"
	}
	return check
}

func (d *Daemon) checkQueue() HealthCheck {
	check := HealthCheck{Name: "run_queue", Status: HealthStatusHealthy}
	if n, size := d.queue.Len(), d.queue.Cap(); n >= size {
		check.Status = HealthStatusDegraded
		check.Message = "Run queue is full"
	}
	return check
}

func (d *Daemon) checkHistory(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "history_store", Status: HealthStatusHealthy}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := d.store.RunIDs(ctx, 1); err != nil {
		check.Status = HealthStatusDegraded
		check.Message = err.Error()
	}
	return check
}
