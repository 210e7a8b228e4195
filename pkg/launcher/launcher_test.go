package launcher

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess is an in-memory Process for scan tests
type fakeProcess struct {
	pid  int
	done chan struct{}

	mu         sync.Mutex
	exitErr    error
	exited     bool
	signalled  bool
	killed     bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{
		pid:  pid,
		done: make(chan struct{}),
	}
}

func (p *fakeProcess) exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.exitErr = err
	close(p.done)
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signalled = true
	p.mu.Unlock()
	// Fake backends shut down promptly on SIGTERM
	p.exit(nil)
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(errors.New("killed"))
	return nil
}

func (p *fakeProcess) isDead() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// testConfig returns a config with timings short enough for tests
func testConfig(min, max int) *Config {
	return &Config{
		Backend: BackendConfig{
			Command: "/usr/bin/env",
		},
		Ports: PortRange{Min: min, Max: max},
		HealthCheck: HealthCheckConfig{
			Path:        "/health",
			Interval:    2 * time.Millisecond,
			MaxAttempts: 3,
			Timeout:     50 * time.Millisecond,
			SettleDelay: time.Millisecond,
		},
	}
}

// scanHarness records spawn order and per-port probe behavior
type scanHarness struct {
	mu          sync.Mutex
	spawnOrder  []int
	procs       map[int]*fakeProcess
	spawnErrs   map[int]error
	probeAfter  map[int]int // port -> probes needed before ready (-1: never)
	probeCalls  map[int]int
	onSpawn     func(port int)
}

func newScanHarness() *scanHarness {
	return &scanHarness{
		procs:      make(map[int]*fakeProcess),
		spawnErrs:  make(map[int]error),
		probeAfter: make(map[int]int),
		probeCalls: make(map[int]int),
	}
}

func (h *scanHarness) start(ctx context.Context, port int) (Process, error) {
	h.mu.Lock()
	h.spawnOrder = append(h.spawnOrder, port)
	onSpawn := h.onSpawn
	err := h.spawnErrs[port]
	h.mu.Unlock()

	if onSpawn != nil {
		onSpawn(port)
	}
	if err != nil {
		return nil, err
	}

	proc := newFakeProcess(10000 + port)
	h.mu.Lock()
	h.procs[port] = proc
	h.mu.Unlock()
	return proc, nil
}

func (h *scanHarness) probe(ctx context.Context, port int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.probeCalls[port]++
	after, ok := h.probeAfter[port]
	if !ok || after < 0 {
		return false
	}
	return h.probeCalls[port] > after
}

func (h *scanHarness) spawnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.spawnOrder)
}

func (h *scanHarness) proc(port int) *fakeProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.procs[port]
}

func newTestLauncher(t *testing.T, cfg *Config, h *scanHarness) *Launcher {
	t.Helper()
	l, err := New(cfg, WithStartFunc(h.start), WithProbe(h.probe))
	require.NoError(t, err)
	return l
}

// TestRun_SpawnFailuresThenHealthy covers the scan advancing past ports
// whose spawn fails outright and stopping at the first healthy one.
func TestRun_SpawnFailuresThenHealthy(t *testing.T) {
	cfg := testConfig(8000, 8010)
	h := newScanHarness()
	for p := 8000; p <= 8004; p++ {
		h.spawnErrs[p] = ErrSpawnFailed(p, errors.New("exec format error"))
	}
	h.probeAfter[8005] = 2 // ready on the 3rd poll

	l := newTestLauncher(t, cfg, h)

	port, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8005, port)
	assert.Equal(t, 8005, l.Port())

	// Ports are tried strictly ascending and nothing beyond the winner
	assert.Equal(t, []int{8000, 8001, 8002, 8003, 8004, 8005}, h.spawnOrder)
	assert.Equal(t, 3, h.probeCalls[8005])

	// The winning process is the only one alive
	proc := h.proc(8005)
	require.NotNil(t, proc)
	assert.False(t, proc.isDead())

	status := l.Status()
	assert.Equal(t, StateHealthy, status.State)
	assert.Equal(t, 8005, status.HealthyPort)
	assert.Equal(t, proc.pid, status.PID)
}

// TestRun_HealthTimeoutKillsBeforeNextSpawn covers the invariant that a
// failed attempt's process is dead before the next port is spawned.
func TestRun_HealthTimeoutKillsBeforeNextSpawn(t *testing.T) {
	cfg := testConfig(8000, 8001)
	h := newScanHarness()
	h.probeAfter[8000] = -1 // never ready
	h.probeAfter[8001] = 0  // ready immediately

	firstDeadAtSecondSpawn := false
	h.onSpawn = func(port int) {
		if port == 8001 {
			if proc := h.proc(8000); proc != nil {
				firstDeadAtSecondSpawn = proc.isDead()
			}
		}
	}

	l := newTestLauncher(t, cfg, h)

	port, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8001, port)

	assert.True(t, firstDeadAtSecondSpawn, "port 8000 process must be dead before port 8001 spawns")
	assert.Equal(t, cfg.HealthCheck.MaxAttempts, h.probeCalls[8000])
	assert.False(t, h.proc(8001).isDead())
}

// TestRun_Exhausted covers full range exhaustion and retry idempotence.
func TestRun_Exhausted(t *testing.T) {
	cfg := testConfig(8000, 8002)
	h := newScanHarness()
	// Every spawn succeeds but nothing ever answers the probe

	l := newTestLauncher(t, cfg, h)

	port, err := l.Run(context.Background())
	assert.Equal(t, 0, port)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrorCodePortRangeExhausted))

	assert.Equal(t, 3, h.spawnCount())
	for p := 8000; p <= 8002; p++ {
		assert.True(t, h.proc(p).isDead(), "process on port %d must not outlive its attempt", p)
	}

	status := l.Status()
	assert.Equal(t, StateExhausted, status.State)
	assert.Equal(t, 0, l.Port())

	// Retry behaves exactly like a fresh run from the bottom of the range
	port, err = l.Run(context.Background())
	assert.Equal(t, 0, port)
	assert.True(t, IsErrorCode(err, ErrorCodePortRangeExhausted))
	assert.Equal(t, []int{8000, 8001, 8002, 8000, 8001, 8002}, h.spawnOrder)
}

// TestRun_ProcessDiesDuringPolling covers early scan advance when the
// backend exits mid-poll instead of running out the poll budget.
func TestRun_ProcessDiesDuringPolling(t *testing.T) {
	cfg := testConfig(8000, 8001)
	cfg.HealthCheck.MaxAttempts = 30 // would take ~60ms per port if waited out
	h := newScanHarness()
	h.probeAfter[8001] = 0

	h.onSpawn = func(port int) {
		if port == 8000 {
			// Crash shortly after spawn, during the settle delay or first polls
			go func() {
				time.Sleep(3 * time.Millisecond)
				h.proc(8000).exit(errors.New("exit status 1"))
			}()
		}
	}

	l := newTestLauncher(t, cfg, h)

	start := time.Now()
	port, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8001, port)

	// Far below the full 30-poll budget for the dead port
	assert.Less(t, time.Since(start), 30*cfg.HealthCheck.Interval)

	status := l.Status()
	assert.Equal(t, StateHealthy, status.State)
}

// TestRun_ContextCancelStopsScan covers app shutdown during a scan.
func TestRun_ContextCancelStopsScan(t *testing.T) {
	cfg := testConfig(8000, 8050)
	cfg.HealthCheck.Interval = 5 * time.Millisecond
	cfg.HealthCheck.MaxAttempts = 30
	h := newScanHarness()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	l := newTestLauncher(t, cfg, h)

	port, err := l.Run(ctx)
	assert.Equal(t, 0, port)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, l.Shutdown(context.Background()))
	for p, proc := range h.procs {
		assert.True(t, proc.isDead(), "process on port %d left running after cancel", p)
	}
}

// TestShutdown_KillsHandedOffProcess covers the quit path after success.
func TestShutdown_KillsHandedOffProcess(t *testing.T) {
	cfg := testConfig(8000, 8000)
	h := newScanHarness()
	h.probeAfter[8000] = 0

	l := newTestLauncher(t, cfg, h)

	port, err := l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8000, port)

	proc := h.proc(8000)
	require.False(t, proc.isDead())

	require.NoError(t, l.Shutdown(context.Background()))
	assert.True(t, proc.isDead())
	assert.True(t, proc.signalled, "shutdown should try SIGTERM first")

	// Second shutdown has nothing to do
	assert.NoError(t, l.Shutdown(context.Background()))
}

// TestRun_RejectedWhileBackendRunning ensures a scan cannot start while a
// previous backend is still owned by the launcher.
func TestRun_RejectedWhileBackendRunning(t *testing.T) {
	cfg := testConfig(8000, 8000)
	h := newScanHarness()
	h.probeAfter[8000] = 0

	l := newTestLauncher(t, cfg, h)

	_, err := l.Run(context.Background())
	require.NoError(t, err)

	_, err = l.Run(context.Background())
	require.Error(t, err)

	require.NoError(t, l.Shutdown(context.Background()))
}

// recordingPublisher captures published events in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) PublishEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// TestRun_PublishesLifecycleEvents checks the event stream a UI consumes.
func TestRun_PublishesLifecycleEvents(t *testing.T) {
	cfg := testConfig(8000, 8001)
	h := newScanHarness()
	h.spawnErrs[8000] = ErrSpawnFailed(8000, errors.New("boom"))
	h.probeAfter[8001] = 0

	pub := &recordingPublisher{}
	l, err := New(cfg, WithStartFunc(h.start), WithProbe(h.probe), WithEventPublisher(pub))
	require.NoError(t, err)

	_, err = l.Run(context.Background())
	require.NoError(t, err)

	got := pub.types()
	assert.Equal(t, []string{"starting", "port_attempt", "port_attempt", "spawned", "healthy"}, got)
}
