package bridge

import "time"

// Message types pushed over the /api/events WebSocket
const (
	// MessageTypeEvent carries a launcher lifecycle event
	MessageTypeEvent = "event"
	// MessageTypeBackendLog carries one line of backend stdout/stderr
	MessageTypeBackendLog = "backend_log"
)

// Message is the envelope for everything the bridge pushes to the UI
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Event fields (type == "event")
	Event    string            `json:"event,omitempty"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Backend log fields (type == "backend_log")
	Port   int    `json:"port,omitempty"`
	Stream string `json:"stream,omitempty"`
	Line   string `json:"line,omitempty"`
}
