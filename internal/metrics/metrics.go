// Package metrics provides Prometheus instrumentation for agent calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agenthub/pkg/retry"
)

// Metrics holds all Prometheus metric collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	RetryAttempts *prometheus.CounterVec
	Calls         *prometheus.CounterVec
	RetryDelay    *prometheus.HistogramVec
	AgentDuration *prometheus.HistogramVec
	JobRuns       *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
}

// New creates and registers all metrics, including Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthub_retry_attempts_total",
			Help: "Retries scheduled after a rate-limited call, partitioned by operation.",
		}, []string{"op"}),
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthub_calls_total",
			Help: "Finished retried calls, partitioned by operation and final outcome.",
		}, []string{"op", "outcome"}),
		RetryDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agenthub_retry_delay_seconds",
			Help:    "Backoff delay (including jitter) before each retry.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}, []string{"op"}),
		AgentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agenthub_agent_duration_seconds",
			Help:    "Wall time of a full agent invocation.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"agent"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthub_job_runs_total",
			Help: "Housekeeping job runs, partitioned by job and status.",
		}, []string{"job", "status"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agenthub_cache_lookups_total",
			Help: "Response cache lookups, partitioned by agent and result (hit or miss).",
		}, []string{"agent", "result"}),
	}
	reg.MustRegister(m.RetryAttempts, m.Calls, m.RetryDelay, m.AgentDuration, m.JobRuns, m.CacheLookups)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveAgent records one agent invocation that started at start.
func (m *Metrics) ObserveAgent(agent string, start time.Time) {
	m.AgentDuration.WithLabelValues(agent).Observe(time.Since(start).Seconds())
}

// ObserveJob records one finished scheduler job run.
func (m *Metrics) ObserveJob(name string, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JobRuns.WithLabelValues(name, status).Inc()
}

// ObserveCache records one cache lookup.
func (m *Metrics) ObserveCache(agent string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(agent, result).Inc()
}

// RetryObserver returns a retry.Observer labelling events with op.
func (m *Metrics) RetryObserver(op string) retry.Observer {
	return opObserver{m: m, op: op}
}

type opObserver struct {
	m  *Metrics
	op string
}

func (o opObserver) ObserveRetry(_ int, delay time.Duration) {
	o.m.RetryAttempts.WithLabelValues(o.op).Inc()
	o.m.RetryDelay.WithLabelValues(o.op).Observe(delay.Seconds())
}

func (o opObserver) ObserveResult(outcome retry.Outcome, _ int) {
	o.m.Calls.WithLabelValues(o.op, outcome.String()).Inc()
}
