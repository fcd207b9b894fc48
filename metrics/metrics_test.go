package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RequestObserved("openai", "success", 120*time.Millisecond)
	m.RequestObserved("openai", "success", 80*time.Millisecond)
	m.RequestObserved("openai", "error", time.Second)
	m.RetryObserved("openai")
	m.BreakerStateChanged("openai", 1)
	m.StreamEventObserved("openai", "part_delta")
	m.StreamEventObserved("openai", "part_delta")

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("openai", "success")); got != 2 {
		t.Fatalf("requests success = %v", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("openai", "error")); got != 1 {
		t.Fatalf("requests error = %v", got)
	}
	if got := testutil.ToFloat64(m.retryAttempts.WithLabelValues("openai")); got != 1 {
		t.Fatalf("retries = %v", got)
	}
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("openai")); got != 1 {
		t.Fatalf("breaker state = %v", got)
	}
	if got := testutil.ToFloat64(m.streamEvents.WithLabelValues("openai", "part_delta")); got != 2 {
		t.Fatalf("stream events = %v", got)
	}
}

func TestMetrics_NilIsNop(t *testing.T) {
	var m *Metrics
	m.RequestObserved("p", "success", time.Millisecond)
	m.RetryObserved("p")
	m.BreakerStateChanged("p", 2)
	m.StreamEventObserved("p", "done")
}
