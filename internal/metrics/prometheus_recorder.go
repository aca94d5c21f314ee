package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "docgate"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once         sync.Once
	stepDuration *prom.HistogramVec
	stepResults  *prom.CounterVec
	runDuration  prom.Histogram
	runOutcome   *prom.CounterVec
	brokenLinks  *prom.CounterVec
	triggers     *prom.CounterVec
	queueDepth   prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual pipeline steps",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"step"})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Step result counts by status",
		}, []string{"step", "result"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Pipeline runs by final outcome",
		}, []string{"outcome"})
		pr.brokenLinks = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "broken_links_total",
			Help:      "Broken links found by the link verification step",
		}, []string{"kind"})
		pr.triggers = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_decisions_total",
			Help:      "Trigger evaluations by event kind and decision",
		}, []string{"event", "decision"})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "run_queue_depth",
			Help:      "Runs waiting for the worker",
		})
		reg.MustRegister(pr.stepDuration, pr.stepResults, pr.runDuration, pr.runOutcome, pr.brokenLinks, pr.triggers, pr.queueDepth)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	if p == nil || p.stepResults == nil {
		return
	}
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome OutcomeLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddBrokenLinks(internal, external int) {
	if p == nil || p.brokenLinks == nil {
		return
	}
	if internal > 0 {
		p.brokenLinks.WithLabelValues("internal").Add(float64(internal))
	}
	if external > 0 {
		p.brokenLinks.WithLabelValues("external").Add(float64(external))
	}
}

func (p *PrometheusRecorder) IncTriggerDecision(event string, accepted bool) {
	if p == nil || p.triggers == nil {
		return
	}
	decision := "ignored"
	if accepted {
		decision = "accepted"
	}
	p.triggers.WithLabelValues(event, decision).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}
