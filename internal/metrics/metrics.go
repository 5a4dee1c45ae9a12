package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process's Prometheus instruments on a private
// registry so tests never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	generativeCalls *prometheus.CounterVec
	toolTimeouts    prometheus.Counter
	runDuration     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipscope_runs_total",
			Help: "Completed orchestration runs by outcome.",
		}, []string{"outcome"}),
		generativeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipscope_generative_calls_total",
			Help: "Generative model calls by purpose (planner, worker, chat).",
		}, []string{"purpose"}),
		toolTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clipscope_tool_timeouts_total",
			Help: "Tool invocations aborted by their time budget.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clipscope_run_duration_seconds",
			Help:    "End-to-end orchestration run duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 13),
		}),
	}
	m.registry.MustRegister(m.runs, m.generativeCalls, m.toolTimeouts, m.runDuration)
	return m
}

func (m *Metrics) RunCompleted(outcome string, elapsed time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) GenerativeCalls(purpose string, n int) {
	if n <= 0 {
		return
	}
	m.generativeCalls.WithLabelValues(purpose).Add(float64(n))
}

func (m *Metrics) ToolTimeouts(n int) {
	if n <= 0 {
		return
	}
	m.toolTimeouts.Add(float64(n))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
