package launcher

import (
	"time"
)

// MetricsCollector defines the interface for collecting launcher metrics
type MetricsCollector interface {
	// PortAttempt records the start of a launch attempt on a port
	PortAttempt(port int)

	// SpawnFailure records an OS-level spawn failure on a port
	SpawnFailure(port int)

	// HealthProbe records a single health probe and its result
	HealthProbe(port int, ready bool)

	// ScanCompleted records the end of a full scan with its outcome
	// ("healthy" or "exhausted") and duration
	ScanCompleted(outcome string, duration time.Duration)

	// StateTransition records a launcher state change
	StateTransition(from, to State)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) PortAttempt(port int)                                {}
func (n *noopMetricsCollector) SpawnFailure(port int)                               {}
func (n *noopMetricsCollector) HealthProbe(port int, ready bool)                    {}
func (n *noopMetricsCollector) ScanCompleted(outcome string, d time.Duration)       {}
func (n *noopMetricsCollector) StateTransition(from, to State)                      {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
