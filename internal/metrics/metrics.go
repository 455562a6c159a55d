// Package metrics exposes the endpoint's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the endpoint's collectors. One instance per process,
// registered on construction.
type Metrics struct {
	Requests          *prometheus.CounterVec
	DecryptFailures   prometheus.Counter
	ScreenTransitions *prometheus.CounterVec
	ActiveSessions    prometheus.GaugeFunc
	DownstreamLatency prometheus.Histogram

	registry *prometheus.Registry
}

// New registers the collectors on a fresh registry. activeSessions reports
// the live session count at scrape time.
func New(activeSessions func() float64) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifetap",
			Subsystem: "flow",
			Name:      "requests_total",
			Help:      "Flow endpoint requests by outcome.",
		}, []string{"outcome"}),
		DecryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lifetap",
			Subsystem: "flow",
			Name:      "decrypt_failures_total",
			Help:      "Envelope decryptions that failed key unwrap or authentication.",
		}),
		ScreenTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifetap",
			Subsystem: "flow",
			Name:      "screen_transitions_total",
			Help:      "State machine transitions by resulting screen.",
		}, []string{"screen"}),
		DownstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lifetap",
			Subsystem: "flow",
			Name:      "downstream_seconds",
			Help:      "Latency of terminal incident-creation calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}
	m.ActiveSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "lifetap",
		Subsystem: "flow",
		Name:      "active_sessions",
		Help:      "Live flow sessions held by the store.",
	}, activeSessions)

	m.registry.MustRegister(
		m.Requests,
		m.DecryptFailures,
		m.ScreenTransitions,
		m.ActiveSessions,
		m.DownstreamLatency,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
