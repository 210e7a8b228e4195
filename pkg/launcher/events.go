package launcher

import "context"

// EventPublisher defines the interface for publishing launcher lifecycle
// events to the UI layer. This lets the orchestrator report state changes
// without knowing anything about the transport that carries them.
//
// Event types:
//   - starting: scan started
//   - port_attempt: a new candidate port is being tried
//   - spawned: backend process started, health check pending
//   - healthy: backend passed its health check
//   - unhealthy: backend stopped answering after handoff
//   - process_exited: backend exited on its own
//   - scan_exhausted: every port in the range failed
//   - stopping: launcher is terminating the backend
//   - stopped: backend process terminated
type EventPublisher interface {
	// PublishEvent delivers a lifecycle event.
	//
	// Returns error if the event could not be delivered; the launcher
	// logs such failures but never lets them affect the scan.
	PublishEvent(ctx context.Context, eventType, message string, metadata map[string]string) error
}

// NoopEventPublisher is a no-op implementation for headless runs
type NoopEventPublisher struct{}

// PublishEvent does nothing in headless mode
func (n *NoopEventPublisher) PublishEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	return nil
}
