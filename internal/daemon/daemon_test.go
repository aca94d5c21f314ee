package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/eventstore"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/pipeline"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/webhook"
)

const pushBody = `{
  "ref": "refs/heads/update-intro",
  "after": "9f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e",
  "repository": {"full_name": "acme/docs"},
  "sender": {"login": "octocat"}
}`

// fakeExecutor walks the four steps without external tools.
type fakeExecutor struct {
	obs     pipeline.Observer
	failAt  pipeline.StepName
	release chan struct{}
}

func (f *fakeExecutor) ExecuteWithID(ctx context.Context, runID string, ev trigger.Event) (*pipeline.RunReport, error) {
	names := []pipeline.StepName{pipeline.StepCheckout, pipeline.StepProvision, pipeline.StepBuildVerify, pipeline.StepLinkVerify}
	steps := make([]pipeline.StepDef, 0, len(names))
	for _, name := range names {
		steps = append(steps, pipeline.StepDef{Name: name, Fn: func(ctx context.Context, run *pipeline.Run) error {
			if name == pipeline.StepCheckout {
				if f.release != nil {
					select {
					case <-f.release:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				run.Report.Revision = ev.Revision
			}
			if name == f.failAt {
				return ferrors.BuildError("documentation build reported 1 warning(s) and 0 error(s)").Build()
			}
			return nil
		}})
	}

	report := &pipeline.RunReport{RunID: runID, Event: ev, StartedAt: time.Now().UTC()}
	for _, st := range steps {
		report.Steps = append(report.Steps, pipeline.StepResult{Name: st.Name, Status: pipeline.StatusPending})
	}
	run := &pipeline.Run{ID: runID, Event: ev, Report: report}

	f.obs.OnRunStart(report)
	err := pipeline.RunSteps(ctx, run, steps, f.obs)
	f.obs.OnRunComplete(report)
	return report, err
}

type harness struct {
	daemon *Daemon
	mu     sync.Mutex
	failAt pipeline.StepName
	gate   chan struct{}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Repository.URL = "https://example.com/acme/docs.git"
	cfg.Repository.Name = "docs"
	cfg.Daemon = &config.DaemonConfig{
		HTTP:      config.HTTPConfig{WebhookPort: 18090, AdminPort: 18091},
		Webhook:   config.WebhookConfig{Path: "/webhook", Forge: config.ForgeGitHub, Secret: "s3cret"},
		QueueSize: 2,
	}
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{}
	d, err := New(cfg, "", WithExecutorFactory(func(_ *config.Config, obs pipeline.Observer) Executor {
		h.mu.Lock()
		defer h.mu.Unlock()
		return &fakeExecutor{obs: obs, failAt: h.failAt, release: h.gate}
	}))
	require.NoError(t, err)
	h.daemon = d

	ctx, cancel := context.WithCancel(context.Background())
	d.queue.Start(ctx, d.execute)
	t.Cleanup(func() {
		cancel()
		_ = d.queue.Stop(context.Background())
		_ = d.store.Close()
	})
	return h
}

func (h *harness) webhook(t *testing.T, body string) webhook.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set(webhook.HeaderHubSignature256, webhook.Sign([]byte(body), "s3cret"))
	rec := httptest.NewRecorder()
	h.daemon.http.WebhookHandler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp webhook.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func (h *harness) admin(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.daemon.http.AdminHandler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) waitCompleted(t *testing.T, runID string) *eventstore.RunSummary {
	t.Helper()
	var summary *eventstore.RunSummary
	require.Eventually(t, func() bool {
		s, ok := h.daemon.history.GetRun(runID)
		if !ok || s.CompletedAt == nil {
			return false
		}
		summary = s
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return summary
}

func TestNew_RequiresDaemonSection(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg, "")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestWebhookRunIsRecorded(t *testing.T) {
	h := newHarness(t, testConfig())

	resp := h.webhook(t, pushBody)
	require.Equal(t, "queued", resp.Status)
	require.NotEmpty(t, resp.RunID)

	summary := h.waitCompleted(t, resp.RunID)
	assert.Equal(t, "success", summary.Status)
	assert.Equal(t, 0, summary.ExitCode)
	assert.Equal(t, "9f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e", summary.Revision)
	assert.Equal(t, "acme/docs", summary.Trigger.Repository)
	require.Len(t, summary.Steps, 4)

	rec := h.admin(http.MethodGet, "/runs/"+resp.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got eventstore.RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, resp.RunID, got.RunID)
}

func TestFailedRunReport(t *testing.T) {
	h := newHarness(t, testConfig())
	h.failAt = pipeline.StepBuildVerify

	resp := h.webhook(t, pushBody)
	summary := h.waitCompleted(t, resp.RunID)
	assert.Equal(t, "failed", summary.Status)
	assert.Equal(t, "build_verify", summary.FailedStep)
	assert.Equal(t, ferrors.ExitCodeOf(ferrors.BuildError("x").Build()), summary.ExitCode)

	rec := h.admin(http.MethodGet, "/runs/"+resp.RunID+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Build Verify")

	rec = h.admin(http.MethodGet, "/runs/"+resp.RunID+"/report?format=md", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "| Step | Status | Exit code | Duration |")
}

func TestUnmatchedBranchIsIgnored(t *testing.T) {
	h := newHarness(t, testConfig())

	body := strings.Replace(pushBody, "refs/heads/update-intro", "refs/heads/feature/x", 1)
	resp := h.webhook(t, body)
	assert.Equal(t, "ignored", resp.Status)
	assert.Empty(t, resp.RunID)
	assert.Empty(t, h.daemon.history.GetHistory())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushBody))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set(webhook.HeaderHubSignature256, webhook.Sign([]byte(pushBody), "wrong"))
	rec := httptest.NewRecorder()
	h.daemon.http.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestManualRun(t *testing.T) {
	h := newHarness(t, testConfig())

	rec := h.admin(http.MethodPost, "/runs", `{"revision":"abc123"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp webhook.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "manual", resp.Event)
	assert.Equal(t, "main", resp.Branch)

	summary := h.waitCompleted(t, resp.RunID)
	assert.Equal(t, "abc123", summary.Revision)
	assert.Equal(t, trigger.KindManual, summary.Trigger.Kind)
}

func TestManualRun_InvalidBody(t *testing.T) {
	h := newHarness(t, testConfig())
	rec := h.admin(http.MethodPost, "/runs", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueuedRunsAndBackpressure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.gate = make(chan struct{})

	first, err := h.daemon.Enqueue(trigger.ManualEvent("main", "r1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		active, ok := h.daemon.queue.Active()
		return ok && active.ID == first
	}, 5*time.Second, 10*time.Millisecond)

	second, err := h.daemon.Enqueue(trigger.ManualEvent("main", "r2"))
	require.NoError(t, err)
	_, err = h.daemon.Enqueue(trigger.ManualEvent("main", "r3"))
	require.NoError(t, err)
	_, err = h.daemon.Enqueue(trigger.ManualEvent("main", "r4"))
	require.ErrorIs(t, err, ErrQueueFull)

	rec := h.admin(http.MethodGet, "/runs/"+second, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)

	rec = h.admin(http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list RunList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.NotNil(t, list.Active)
	assert.Equal(t, first, list.Active.ID)
	assert.Len(t, list.Queued, 2)

	rec = h.admin(http.MethodPost, "/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(h.gate)
	h.waitCompleted(t, first)
	h.waitCompleted(t, second)
}

func TestGetRun_NotFound(t *testing.T) {
	h := newHarness(t, testConfig())
	assert.Equal(t, http.StatusNotFound, h.admin(http.MethodGet, "/runs/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, h.admin(http.MethodGet, "/runs/nope/report", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, testConfig())

	resp := h.webhook(t, pushBody)
	h.waitCompleted(t, resp.RunID)

	rec := h.admin(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, "daemon was never started")
	var health HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	assert.Len(t, health.Checks, 3)

	rec = h.admin(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `docgate_trigger_decisions_total{decision="accepted",event="push"} 1`)
	assert.Contains(t, body, `docgate_run_outcomes_total{outcome="success"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestReloadConfig(t *testing.T) {
	h := newHarness(t, testConfig())

	next := testConfig()
	next.Trigger.Branches = []string{"release-*"}
	next.Daemon.Webhook.Secret = "rotated"
	require.NoError(t, h.daemon.ReloadConfig(context.Background(), next))

	runID, err := h.daemon.Dispatch(trigger.PushEvent("refs/heads/main", "abc"))
	require.NoError(t, err)
	assert.Empty(t, runID, "main is no longer allowed")

	runID, err = h.daemon.Dispatch(trigger.PushEvent("refs/heads/release-1", "abc"))
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(pushBody))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set(webhook.HeaderHubSignature256, webhook.Sign([]byte(pushBody), "s3cret"))
	rec := httptest.NewRecorder()
	h.daemon.http.WebhookHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "old secret must be rejected after reload")

	moved := testConfig()
	moved.Daemon.HTTP.AdminPort = 19000
	err = h.daemon.ReloadConfig(context.Background(), moved)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestStart_ReportsPortConflict(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Daemon.HTTP.WebhookPort = ln.Addr().(*net.TCPAddr).Port
	cfg.Daemon.HTTP.AdminPort = 0

	d, err := New(cfg, "")
	require.NoError(t, err)
	err = d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook port")
	assert.Equal(t, StatusStopped, d.Status())
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.Daemon.HTTP.WebhookPort = freePort(t)
	cfg.Daemon.HTTP.AdminPort = freePort(t)
	cfg.Daemon.Schedule = config.ScheduleConfig{Interval: "1h", Branch: "main"}

	d, err := New(cfg, "")
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, StatusRunning, d.Status())

	_, ok := d.scheduler.NextRun()
	assert.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, StatusStopped, d.Status())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
