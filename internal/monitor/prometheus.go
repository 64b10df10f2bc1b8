package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infera_backend_invocations_total",
			Help: "Total number of backend invocations",
		},
		[]string{"backend", "outcome"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infera_backend_duration_seconds",
			Help:    "Backend invocation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"backend"},
	)

	invocationConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "infera_backend_confidence",
			Help:    "Self-reported confidence of successful backend results",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"backend"},
	)

	invocationCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infera_backend_cost_total",
			Help: "Accumulated backend invocation cost",
		},
		[]string{"backend"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "infera_fallbacks_total",
			Help: "Total number of fallback invocations",
		},
		[]string{"backend"},
	)

	droppedSamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "infera_telemetry_dropped_samples_total",
			Help: "Telemetry samples dropped because the queue was full",
		},
	)
)

func observeSample(s Sample) {
	outcome := "success"
	if !s.Succeeded {
		outcome = "failure"
	}

	kind := string(s.Backend)
	invocationsTotal.WithLabelValues(kind, outcome).Inc()
	invocationDuration.WithLabelValues(kind).Observe(s.Latency.Seconds())
	if s.Succeeded {
		invocationConfidence.WithLabelValues(kind).Observe(s.Confidence)
	}
	if s.Cost > 0 {
		invocationCost.WithLabelValues(kind).Add(s.Cost)
	}
	if s.Fallback {
		fallbacksTotal.WithLabelValues(kind).Inc()
	}
}
