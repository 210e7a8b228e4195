package launcher

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Launcher owns the backend launch sequence: scan the configured port
// range in ascending order, spawn the backend on each candidate, health
// check it, and hand the first healthy port to the caller. All launch
// attempt state lives here; nothing is module-level.
type Launcher struct {
	config *Config

	// Collaborators, all injectable for tests
	metrics    MetricsCollector
	events     EventPublisher
	lineSink   LineSink
	start      StartFunc
	probe      ProbeFunc
	httpClient *http.Client

	mu          sync.Mutex
	running     bool
	state       State
	currentPort int
	attempt     int
	healthyPort int
	lastErr     error
	scanStarted time.Time

	// The single tracked backend process. Mutated only by Run and
	// Shutdown; retained after success solely for the shutdown-kill path.
	proc Process
}

// Option configures the Launcher
type Option func(*Launcher)

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(l *Launcher) {
		l.metrics = mc
	}
}

// WithEventPublisher sets the lifecycle event publisher
func WithEventPublisher(ep EventPublisher) Option {
	return func(l *Launcher) {
		l.events = ep
	}
}

// WithLineSink sets the sink for forwarded backend output lines
func WithLineSink(sink LineSink) Option {
	return func(l *Launcher) {
		l.lineSink = sink
	}
}

// WithStartFunc replaces the OS process spawner
func WithStartFunc(start StartFunc) Option {
	return func(l *Launcher) {
		l.start = start
	}
}

// WithProbe replaces the health probe
func WithProbe(probe ProbeFunc) Option {
	return func(l *Launcher) {
		l.probe = probe
	}
}

// WithHTTPClient sets the client used by the default HTTP probe
func WithHTTPClient(client *http.Client) Option {
	return func(l *Launcher) {
		l.httpClient = client
	}
}

// New creates a launcher for the given configuration.
func New(config *Config, opts ...Option) (*Launcher, error) {
	if config == nil {
		return nil, ErrInvalidConfiguration("config", nil, "configuration is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Launcher{
		config:   config,
		metrics:  NewNoopMetricsCollector(),
		events:   &NoopEventPublisher{},
		lineSink: defaultLineSink,
		state:    StateIdle,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.httpClient == nil {
		l.httpClient = &http.Client{Timeout: config.HealthCheck.Timeout}
	}
	if l.start == nil {
		l.start = l.startBackend
	}
	if l.probe == nil {
		l.probe = l.httpProbe
	}

	return l, nil
}

// Run executes one full scan of the port range. It returns the first
// port whose backend passed the health check, or a PORT_RANGE_EXHAUSTED
// error once every candidate failed. Each failed attempt's process is
// killed and observed dead before the next port is tried, so at most one
// backend is ever alive. Calling Run again after exhaustion behaves
// exactly like a fresh run from the bottom of the range.
func (l *Launcher) Run(ctx context.Context) (int, error) {
	if err := l.beginScan(); err != nil {
		return 0, err
	}

	scanStart := time.Now()
	l.publish(ctx, "starting", fmt.Sprintf("scanning ports %d-%d", l.config.Ports.Min, l.config.Ports.Max), nil)

	for port := l.config.Ports.Min; port <= l.config.Ports.Max; port++ {
		if ctx.Err() != nil {
			l.finishScan(StateIdle)
			return 0, ctx.Err()
		}

		l.setPort(port)
		l.metrics.PortAttempt(port)
		l.publish(ctx, "port_attempt", fmt.Sprintf("trying port %d", port), map[string]string{"port": fmt.Sprintf("%d", port)})

		proc, err := l.start(ctx, port)
		if err != nil {
			// Spawn failure: nothing started, advance to the next port
			log.Printf("Spawn failed on port %d: %v", port, err)
			l.recordFailure(port, err)
			l.metrics.SpawnFailure(port)
			continue
		}

		l.setProc(proc)
		l.publish(ctx, "spawned", fmt.Sprintf("backend started on port %d (pid %d)", port, proc.PID()), map[string]string{"port": fmt.Sprintf("%d", port)})

		if err := l.waitUntilHealthy(ctx, port, proc); err != nil {
			// Health failure: kill the attempt before trying the next port
			if stopErr := l.stopTracked(); stopErr != nil {
				log.Printf("Error stopping backend on port %d: %v", port, stopErr)
			}

			if ctx.Err() != nil {
				l.finishScan(StateIdle)
				return 0, ctx.Err()
			}

			log.Printf("Port %d failed: %v", port, err)
			l.recordFailure(port, err)
			if IsErrorCode(err, ErrorCodeProcessDied) {
				l.publish(ctx, "process_exited", err.Error(), map[string]string{"port": fmt.Sprintf("%d", port)})
			}
			continue
		}

		// First healthy port wins; no later port is tried
		l.markHealthy(port)
		l.metrics.ScanCompleted("healthy", time.Since(scanStart))
		l.publish(ctx, "healthy", fmt.Sprintf("backend ready on port %d", port), map[string]string{"port": fmt.Sprintf("%d", port)})
		log.Printf("Backend launch complete: port %d, pid %d", port, proc.PID())
		return port, nil
	}

	l.finishScan(StateExhausted)
	l.metrics.ScanCompleted("exhausted", time.Since(scanStart))
	err := ErrPortRangeExhausted(l.config.Ports.Min, l.config.Ports.Max)
	l.publish(ctx, "scan_exhausted", err.Message, nil)
	return 0, err
}

// Port returns the healthy port, the single source of truth for all
// subsequent backend calls. Zero until a scan has succeeded.
func (l *Launcher) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.healthyPort
}

// Status returns a snapshot of the launcher state
func (l *Launcher) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := Status{
		State:       l.state,
		CurrentPort: l.currentPort,
		Attempt:     l.attempt,
		HealthyPort: l.healthyPort,
		ScanStarted: l.scanStarted,
	}
	if l.proc != nil {
		status.PID = l.proc.PID()
	}
	if l.lastErr != nil {
		status.LastError = l.lastErr.Error()
	}
	return status
}

// Shutdown terminates any tracked backend process, in-flight or handed
// off, and waits for it to exit. This is the only cancellation path:
// application quit must never leave a child running.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	proc := l.proc
	l.proc = nil
	l.mu.Unlock()

	if proc == nil {
		return nil
	}

	l.publish(ctx, "stopping", "terminating backend process", nil)

	grace := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}

	if err := stopProcess(proc, grace); err != nil {
		return fmt.Errorf("shutdown backend: %w", err)
	}

	l.publish(ctx, "stopped", "backend process terminated", nil)
	return nil
}

// beginScan resets attempt state for a fresh run. Retry after exhaustion
// must not observe anything left over from the previous scan.
func (l *Launcher) beginScan() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return NewError(ErrorCodeInvalidConfiguration, "scan already in progress")
	}
	if l.proc != nil {
		return NewError(ErrorCodeInvalidConfiguration, "backend already running; shut it down before rescanning")
	}

	l.running = true
	l.setStateLocked(StateScanning)
	l.currentPort = 0
	l.attempt = 0
	l.healthyPort = 0
	l.lastErr = nil
	l.scanStarted = time.Now()
	return nil
}

func (l *Launcher) finishScan(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.setStateLocked(state)
}

func (l *Launcher) markHealthy(port int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.healthyPort = port
	l.setStateLocked(StateHealthy)
}

func (l *Launcher) setStateLocked(state State) {
	if l.state != state {
		l.metrics.StateTransition(l.state, state)
		l.state = state
	}
}

func (l *Launcher) setPort(port int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentPort = port
	l.attempt = 0
}

func (l *Launcher) setAttempt(attempt int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempt = attempt
}

func (l *Launcher) setProc(proc Process) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.proc = proc
}

func (l *Launcher) recordFailure(port int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastErr = err
}

// releaseBackend forgets a backend that is already dead so a fresh scan
// can begin. The healthy port is cleared with it: the port contract only
// holds while the process behind it is alive.
func (l *Launcher) releaseBackend() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.proc = nil
	l.healthyPort = 0
	l.setStateLocked(StateIdle)
}

// stopTracked kills the tracked process and clears the handle once the
// process is observed dead.
func (l *Launcher) stopTracked() error {
	l.mu.Lock()
	proc := l.proc
	l.proc = nil
	l.mu.Unlock()

	if proc == nil {
		return nil
	}
	return stopProcess(proc, 5*time.Second)
}

// publish sends a lifecycle event, never failing the scan over it
func (l *Launcher) publish(ctx context.Context, eventType, message string, metadata map[string]string) {
	if err := l.events.PublishEvent(ctx, eventType, message, metadata); err != nil {
		log.Printf("Event publish failed (%s): %v", eventType, err)
	}
}
