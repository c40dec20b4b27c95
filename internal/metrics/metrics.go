// Package metrics exposes Prometheus instrumentation for the gateway and engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reasoner"

// Outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var (
	// gatewayCalls counts inference calls.
	// Labels: kind (complete, stream), outcome (ok, error, cancelled)
	gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Inference calls by kind and outcome",
	}, []string{"kind", "outcome"})

	// gatewayLatency measures time from request to final chunk.
	gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "latency_seconds",
		Help:      "Inference call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	poolWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "wait_seconds",
		Help:      "Time spent waiting for an inference slot",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
	})

	poolInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "in_flight",
		Help:      "Inference slots currently held",
	})

	// runs counts orchestration runs.
	// Labels: mode (pipeline, decompose), outcome (ok, error, cancelled)
	runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "runs_total",
		Help:      "Orchestration runs by mode and outcome",
	}, []string{"mode", "outcome"})

	events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "events_total",
		Help:      "Stream events emitted by type",
	}, []string{"type"})

	splits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "splits_total",
		Help:      "Tasks split into sub-tasks",
	})

	leafDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "leaf_depth",
		Help:      "Depth at which leaf tasks execute",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})
)

// RecordGatewayCall records one inference call.
func RecordGatewayCall(kind, outcome string, elapsed time.Duration) {
	gatewayCalls.WithLabelValues(kind, outcome).Inc()
	gatewayLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObservePoolWait records how long a caller waited for a slot.
func ObservePoolWait(d time.Duration) {
	poolWait.Observe(d.Seconds())
}

// PoolAcquired marks a slot as taken.
func PoolAcquired() { poolInFlight.Inc() }

// PoolReleased marks a slot as returned.
func PoolReleased() { poolInFlight.Dec() }

// RecordRun records a finished orchestration run.
func RecordRun(mode, outcome string) {
	runs.WithLabelValues(mode, outcome).Inc()
}

// RecordEvent counts an emitted stream event.
func RecordEvent(eventType string) {
	events.WithLabelValues(eventType).Inc()
}

// RecordSplit counts a task decomposed into sub-tasks.
func RecordSplit() { splits.Inc() }

// ObserveLeafDepth records the depth of an executed leaf.
func ObserveLeafDepth(depth int) {
	leafDepth.Observe(float64(depth))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
