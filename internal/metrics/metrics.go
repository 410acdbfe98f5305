// Package metrics exposes Prometheus instrumentation for model calls,
// extraction jobs, generation runs and the audit sink.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/chunkdim/internal/llm"
)

const namespace = "chunkdim"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
	modelTokens  *prometheus.CounterVec
	cost         prometheus.Counter
	jobs         *prometheus.CounterVec
	runs         *prometheus.CounterVec
	auditDropped prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Language model calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Language model call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
		}, []string{"operation"}),
		modelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_total",
			Help:      "Tokens reported by the model, by direction.",
		}, []string{"direction"}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cost_usd_total",
			Help:      "Estimated generation cost in USD.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_jobs_total",
			Help:      "Finished extraction jobs by final status.",
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_runs_total",
			Help:      "Finished generation runs by final status.",
		}, []string{"status"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Audit records dropped because the sink buffer was full.",
		}),
	}
	reg.MustRegister(m.modelCalls, m.modelLatency, m.modelTokens, m.cost, m.jobs, m.runs, m.auditDropped)
	return m
}

// ObserveModelCall records one model call.
func (m *Metrics) ObserveModelCall(operation string, c llm.Completion, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.modelCalls.WithLabelValues(operation, outcome).Inc()
	m.modelLatency.WithLabelValues(operation).Observe(d.Seconds())
	if err == nil {
		m.modelTokens.WithLabelValues("input").Add(float64(c.InputTokens))
		m.modelTokens.WithLabelValues("output").Add(float64(c.OutputTokens))
	}
}

// AddCost adds an estimated call cost.
func (m *Metrics) AddCost(usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.cost.Add(usd)
}

// JobFinished counts an extraction job reaching a terminal status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

// RunFinished counts a generation run reaching a terminal status.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// AuditDropped counts a dropped audit record.
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}
