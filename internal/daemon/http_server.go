package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/eventstore"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
	"git.home.luguber.info/inful/docgate/internal/metrics"
	"git.home.luguber.info/inful/docgate/internal/report"
	"git.home.luguber.info/inful/docgate/internal/server/middleware"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/webhook"
)

const maxManualBodyBytes = 64 << 10

// HTTPServer serves the webhook endpoint and the admin API on separate ports.
type HTTPServer struct {
	daemon        *Daemon
	webhookServer *http.Server
	adminServer   *http.Server
	errorAdapter  *errors.HTTPErrorAdapter
	webhook       atomic.Pointer[webhook.Handler]
	mchain        func(http.Handler) http.Handler
}

// NewHTTPServer creates the HTTP surface for d.
func NewHTTPServer(d *Daemon) *HTTPServer {
	s := &HTTPServer{daemon: d, errorAdapter: errors.NewHTTPErrorAdapter(d.logger)}
	s.mchain = middleware.Chain(d.logger, s.errorAdapter)
	s.SetWebhookSecret(d.cfg.Daemon.Webhook)
	return s
}

// SetWebhookSecret swaps the webhook handler for one using cfg.
func (s *HTTPServer) SetWebhookSecret(cfg config.WebhookConfig) {
	s.webhook.Store(webhook.NewHandler(cfg, s.daemon, s.daemon.logger))
}

// Start binds both ports before serving so a port conflict fails the whole
// startup with every bind error reported.
func (s *HTTPServer) Start(ctx context.Context) error {
	httpCfg := s.daemon.Config().Daemon.HTTP
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "webhook", port: httpCfg.WebhookPort},
		{name: "admin", port: httpCfg.AdminPort},
	}
	var lc net.ListenConfig
	var bindErrs []error
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", binds[i].port))
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return errors.WrapError(stderrors.Join(bindErrs...), errors.CategoryDaemon, "http startup failed").Build()
	}

	s.webhookServer = s.serve("webhook", s.WebhookHandler(), binds[0].ln)
	s.adminServer = s.serve("admin", s.AdminHandler(), binds[1].ln)

	s.daemon.logger.Info("HTTP servers started",
		slog.Int("webhook_port", httpCfg.WebhookPort),
		slog.Int("admin_port", httpCfg.AdminPort))
	return nil
}

// Stop gracefully shuts down both servers.
func (s *HTTPServer) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.webhookServer != nil {
		if err := s.webhookServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook server shutdown: %w", err))
		}
	}
	return stderrors.Join(errs...)
}

func (s *HTTPServer) serve(name string, h http.Handler, ln net.Listener) *http.Server {
	srv := &http.Server{
		Handler:           s.mchain(h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.daemon.logger.Error("HTTP server error", slog.String("server", name), logfields.Error(err))
		}
	}()
	return srv
}

// WebhookHandler routes forge deliveries to the current webhook handler.
func (s *HTTPServer) WebhookHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.daemon.Config().Daemon.Webhook.Path, func(w http.ResponseWriter, r *http.Request) {
		s.webhook.Load().ServeHTTP(w, r)
	})
	return mux
}

// AdminHandler serves health, metrics, run history and manual triggering.
func (s *HTTPServer) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.HTTPHandler(s.daemon.registry))
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("POST /runs", s.handleTriggerRun)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/report", s.handleRunReport)
	return mux
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.daemon.Health(r.Context())
	status := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// RunList is the /runs response.
type RunList struct {
	Active *QueuedRun               `json:"active,omitempty"`
	Queued []QueuedRun              `json:"queued"`
	Runs   []*eventstore.RunSummary `json:"runs"`
}

func (s *HTTPServer) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	list := RunList{
		Queued: s.daemon.queue.Pending(),
		Runs:   s.daemon.history.GetHistory(),
	}
	if active, ok := s.daemon.queue.Active(); ok {
		list.Active = &active
	}
	writeJSON(w, http.StatusOK, list)
}

// queuedRun is reported for runs that have not started yet.
type queuedRun struct {
	RunID    string        `json:"run_id"`
	Status   string        `json:"status"`
	Trigger  trigger.Event `json:"trigger"`
	QueuedAt time.Time     `json:"queued_at"`
}

func (s *HTTPServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if summary, ok := s.daemon.history.GetRun(id); ok {
		writeJSON(w, http.StatusOK, summary)
		return
	}
	if job, ok := s.daemon.queue.Lookup(id); ok {
		writeJSON(w, http.StatusOK, queuedRun{RunID: job.ID, Status: "queued", Trigger: job.Event, QueuedAt: job.QueuedAt})
		return
	}
	s.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("run not found").WithContext("run_id", id).Build())
}

func (s *HTTPServer) handleRunReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summary, ok := s.daemon.history.GetRun(id)
	if !ok {
		s.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("run not found").WithContext("run_id", id).Build())
		return
	}
	if summary.Report == nil {
		s.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("run has not completed").WithContext("run_id", id).Build())
		return
	}

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(report.Markdown(summary.Report))
		return
	}
	page, err := report.HTML(summary.Report)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to render report").WithCause(err).Build())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// ManualRunRequest is the optional body of POST /runs.
type ManualRunRequest struct {
	Branch   string `json:"branch,omitempty"`
	Revision string `json:"revision,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

func (s *HTTPServer) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req ManualRunRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxManualBodyBytes))
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("failed to read request body").WithCause(err).Build())
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("invalid JSON body").WithCause(err).Build())
			return
		}
	}
	if req.Branch == "" {
		req.Branch = s.daemon.Config().Repository.Branch
	}

	ev := trigger.ManualEvent(req.Branch, req.Revision)
	if req.Ref != "" {
		ev.Ref = req.Ref
	}
	runID, err := s.daemon.Dispatch(ev)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, webhook.Response{Status: "queued", RunID: runID, Event: string(ev.Kind), Branch: ev.Branch})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
