// Package bridge exposes the launcher to the desktop UI as a fixed set
// of named operations over localhost HTTP plus a WebSocket event stream.
// The surface is deliberately narrow: status, decision, events. There is
// no generic invoke channel.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JoseAndresCamachoGuadamuz/InsightsLM/pkg/launcher"
	"github.com/JoseAndresCamachoGuadamuz/InsightsLM/pkg/prompt"
)

var upgrader = websocket.Upgrader{
	// The bridge binds to loopback only; the renderer sets no Origin header
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusSource provides launcher state snapshots
type StatusSource interface {
	Status() launcher.Status
}

// Server is the UI-facing control surface
type Server struct {
	sessionID string
	startTime time.Time
	decisions chan<- prompt.Choice

	mu      sync.Mutex
	source  StatusSource
	clients map[*websocket.Conn]bool
}

// NewServer creates a bridge server. Decisions submitted by the UI are
// delivered on the given channel; the launcher is attached separately
// with SetSource once constructed.
func NewServer(decisions chan<- prompt.Choice) *Server {
	return &Server{
		sessionID: uuid.NewString(),
		startTime: time.Now(),
		decisions: decisions,
		clients:   make(map[*websocket.Conn]bool),
	}
}

// SetSource attaches the launcher whose status the bridge reports
func (s *Server) SetSource(source StatusSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
}

// SessionID returns the id minted for this launcher session
func (s *Server) SessionID() string {
	return s.sessionID
}

// Handler returns the bridge's HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/decision", s.handleDecision)
	mux.HandleFunc("/api/events", s.handleEvents)
	return mux
}

// statusResponse is the /api/status payload
type statusResponse struct {
	SessionID     string          `json:"session_id"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Launcher      launcher.Status `json:"launcher"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	if source == nil {
		http.Error(w, "launcher not ready", http.StatusServiceUnavailable)
		return
	}

	resp := statusResponse{
		SessionID:     s.sessionID,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Launcher:      source.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// decisionRequest is the /api/decision payload
type decisionRequest struct {
	Choice string `json:"choice"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	choice, ok := prompt.Parse(req.Choice)
	if !ok {
		http.Error(w, "choice must be retry, continue, or quit", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	// Quit is always legal; retry and continue only make sense once the
	// scan has actually failed.
	if choice != prompt.ChoiceQuit {
		if source == nil || source.Status().State != launcher.StateExhausted {
			http.Error(w, "no decision pending", http.StatusConflict)
			return
		}
	}

	select {
	case s.decisions <- choice:
	default:
		http.Error(w, "decision already submitted", http.StatusConflict)
		return
	}

	log.Printf("Bridge: decision received: %s", choice)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Bridge: websocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.mu.Unlock()

	log.Printf("Bridge: UI client connected (%d active)", count)

	// Reader loop exists only to notice the client going away
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// Broadcast sends a message to every connected UI client
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("Bridge: dropping client after write error: %v", err)
			s.dropClient(conn)
		}
	}
}

// PublishEvent implements launcher.EventPublisher by broadcasting
// lifecycle events to the UI.
func (s *Server) PublishEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	s.Broadcast(Message{
		Type:     MessageTypeEvent,
		Event:    eventType,
		Message:  message,
		Metadata: metadata,
	})
	return nil
}

// ForwardLogLine implements launcher.LineSink by streaming backend
// output lines to the UI, in addition to the launcher's own log.
func (s *Server) ForwardLogLine(port int, stream, line string) {
	log.Printf("[backend:%d] %s: %s", port, stream, line)
	s.Broadcast(Message{
		Type:   MessageTypeBackendLog,
		Port:   port,
		Stream: stream,
		Line:   line,
	})
}

// Compile-time interface compliance check
var _ launcher.EventPublisher = (*Server)(nil)
