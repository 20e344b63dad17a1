package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExecutionMetrics holds Prometheus metrics for the execution engine.
// All metrics use the fusional_executor_ namespace.
type ExecutionMetrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	InFlight          prometheus.Gauge
	TeardownFailures  prometheus.Counter
	OutputTruncations *prometheus.CounterVec
	AdmissionRejects  prometheus.Counter
}

// NewExecutionMetrics creates and registers execution metrics on the given
// registry. Returns nil if reg is nil.
func NewExecutionMetrics(reg *prometheus.Registry) *ExecutionMetrics {
	if reg == nil {
		return nil
	}

	m := &ExecutionMetrics{
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fusional",
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Total executions by outcome and isolation mode.",
		}, []string{"outcome", "isolation"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fusional",
			Subsystem: "executor",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock execution duration from provisioning to teardown.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"isolation"}),

		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fusional",
			Subsystem: "executor",
			Name:      "in_flight",
			Help:      "Number of currently running executions.",
		}),

		// Repeated teardown failures mean sandbox resources are leaking and
		// will eventually exhaust host capacity.
		TeardownFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fusional",
			Subsystem: "executor",
			Name:      "teardown_failures_total",
			Help:      "Total sandbox teardowns that failed to release resources.",
		}),

		OutputTruncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fusional",
			Subsystem: "executor",
			Name:      "output_truncations_total",
			Help:      "Total captured streams that hit the byte ceiling.",
		}, []string{"stream"}),

		AdmissionRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fusional",
			Subsystem: "executor",
			Name:      "admission_rejects_total",
			Help:      "Total executions rejected because the engine was at capacity.",
		}),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.InFlight,
		m.TeardownFailures,
		m.OutputTruncations,
		m.AdmissionRejects,
	)

	return m
}
