package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the session manager.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionsReaped   prometheus.Counter
	activeSessions   prometheus.Gauge
	pollsTotal       prometheus.Counter
	fragmentsServed  prometheus.Counter
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xcompanion_sessions_started_total",
			Help: "Number of sessions started.",
		}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xcompanion_sessions_finished_total",
			Help: "Number of sessions that reached a terminal state.",
		}, []string{"state"}),
		sessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xcompanion_sessions_reaped_total",
			Help: "Number of terminal sessions removed by the reaper.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xcompanion_sessions",
			Help: "Number of sessions currently registered.",
		}),
		pollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xcompanion_polls_total",
			Help: "Number of delta polls served.",
		}),
		fragmentsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xcompanion_fragments_served_total",
			Help: "Number of result fragments delivered to pollers.",
		}),
	}
	reg.MustRegister(
		m.sessionsStarted,
		m.sessionsFinished,
		m.sessionsReaped,
		m.activeSessions,
		m.pollsTotal,
		m.fragmentsServed,
	)
	return m
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionStarted records a session start.
func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
}

// SessionFinished records a terminal transition with its final state.
func (m *Metrics) SessionFinished(state string) {
	m.sessionsFinished.WithLabelValues(state).Inc()
}

// SessionsReaped records sessions removed by the reaper.
func (m *Metrics) SessionsReaped(n int) {
	m.sessionsReaped.Add(float64(n))
}

// SetActiveSessions records the current registry size.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// PollServed records a delta poll and the number of fragments it delivered.
func (m *Metrics) PollServed(fragments int) {
	m.pollsTotal.Inc()
	m.fragmentsServed.Add(float64(fragments))
}
