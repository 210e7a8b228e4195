package launcher

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	portAttempts  *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	healthProbes  *prometheus.CounterVec

	scanDuration *prometheus.HistogramVec
	scansTotal   *prometheus.CounterVec

	stateTransitions *prometheus.CounterVec
	currentState     *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "backend_launcher"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.portAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "port_attempts_total",
			Help:      "Total number of launch attempts per port",
		},
		[]string{"port"},
	)

	pmc.spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Total number of OS-level spawn failures per port",
		},
		[]string{"port"},
	)

	pmc.healthProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Total number of health probes by result",
		},
		[]string{"port", "result"},
	)

	pmc.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of full port scans by outcome",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"outcome"},
	)

	pmc.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of completed scans by outcome",
		},
		[]string{"outcome"},
	)

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of launcher state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	pmc.currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current launcher state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	pmc.registry.MustRegister(
		pmc.portAttempts,
		pmc.spawnFailures,
		pmc.healthProbes,
		pmc.scanDuration,
		pmc.scansTotal,
		pmc.stateTransitions,
		pmc.currentState,
	)

	return pmc
}

// PortAttempt records the start of a launch attempt on a port
func (pmc *PrometheusMetricsCollector) PortAttempt(port int) {
	pmc.portAttempts.WithLabelValues(strconv.Itoa(port)).Inc()
}

// SpawnFailure records an OS-level spawn failure on a port
func (pmc *PrometheusMetricsCollector) SpawnFailure(port int) {
	pmc.spawnFailures.WithLabelValues(strconv.Itoa(port)).Inc()
}

// HealthProbe records a single health probe and its result
func (pmc *PrometheusMetricsCollector) HealthProbe(port int, ready bool) {
	result := "not_ready"
	if ready {
		result = "ready"
	}
	pmc.healthProbes.WithLabelValues(strconv.Itoa(port), result).Inc()
}

// ScanCompleted records the end of a full scan
func (pmc *PrometheusMetricsCollector) ScanCompleted(outcome string, duration time.Duration) {
	pmc.scansTotal.WithLabelValues(outcome).Inc()
	pmc.scanDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// StateTransition records a launcher state change
func (pmc *PrometheusMetricsCollector) StateTransition(from, to State) {
	pmc.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	pmc.currentState.WithLabelValues(from.String()).Set(0)
	pmc.currentState.WithLabelValues(to.String()).Set(1)
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
