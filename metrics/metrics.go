// Package metrics instruments the LLM runtime with Prometheus collectors.
//
// A Metrics value is created against a caller-supplied Registerer so the
// library never forces collectors into the default registry. All recording
// methods are nil-safe: a nil *Metrics disables instrumentation, which is
// the default everywhere a Metrics can be wired.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retryAttempts   *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	streamEvents    *prometheus.CounterVec
}

// New builds the collector set and registers it on reg. A nil reg falls back
// to prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aikit_requests_total",
				Help: "Completed chat requests by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aikit_request_duration_seconds",
				Help:    "End-to-end chat request latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aikit_retry_attempts_total",
				Help: "Retry attempts issued beyond the first try.",
			},
			[]string{"provider"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aikit_breaker_state",
				Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open.",
			},
			[]string{"provider"},
		),
		streamEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aikit_stream_events_total",
				Help: "Streaming events emitted by provider and event kind.",
			},
			[]string{"provider", "kind"},
		),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.retryAttempts,
		m.breakerState,
		m.streamEvents,
	)
	return m
}

// RequestObserved records one finished request and its latency.
// Outcome is "success" or "error".
func (m *Metrics) RequestObserved(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(provider, outcome).Inc()
	m.requestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RetryObserved records one retry attempt beyond the first try.
func (m *Metrics) RetryObserved(provider string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(provider).Inc()
}

// BreakerStateChanged records a circuit breaker transition. State follows
// the gauge convention: 0 closed, 1 open, 2 half-open.
func (m *Metrics) BreakerStateChanged(provider string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(provider).Set(float64(state))
}

// StreamEventObserved records one emitted streaming event.
func (m *Metrics) StreamEventObserved(provider, kind string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(provider, kind).Inc()
}
