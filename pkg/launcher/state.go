package launcher

import "time"

// State represents the scan state of the launcher
type State int

const (
	// StateIdle - no scan has started yet
	StateIdle State = iota
	// StateScanning - trying ports in ascending order
	StateScanning
	// StateHealthy - a backend passed its health check and owns the session
	StateHealthy
	// StateExhausted - every port in the range failed
	StateExhausted
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateHealthy:
		return "Healthy"
	case StateExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// Status is a point-in-time snapshot of the launcher
type Status struct {
	// State of the scan
	State State `json:"state"`

	// Port currently being attempted (0 outside a scan)
	CurrentPort int `json:"current_port"`

	// Health poll attempt number on the current port
	Attempt int `json:"attempt"`

	// Port that passed the health check (0 until healthy)
	HealthyPort int `json:"healthy_port"`

	// PID of the tracked backend process (0 if none)
	PID int `json:"pid"`

	// Last per-port failure, human readable
	LastError string `json:"last_error,omitempty"`

	// Time the current scan started
	ScanStarted time.Time `json:"scan_started"`
}
