package launcher

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ProbeFunc reports whether the backend on the given port answers its
// health endpoint. The default implementation issues an HTTP GET and
// treats only status 200 as ready.
type ProbeFunc func(ctx context.Context, port int) bool

// httpProbe performs a single health check against 127.0.0.1:<port>.
// Any transport error or non-200 status means "not yet ready", never fatal:
// a 503 from a backend still loading models just keeps the poll going.
func (l *Launcher) httpProbe(ctx context.Context, port int) bool {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, l.config.HealthCheck.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// waitUntilHealthy polls the backend on the given port until it answers
// the health check, the poll budget runs out, or the process dies.
// The process-death watch means a crashed backend fails fast instead of
// running out the full MaxAttempts * Interval budget.
func (l *Launcher) waitUntilHealthy(ctx context.Context, port int, proc Process) error {
	hc := l.config.HealthCheck

	// Give the process a moment to bind its socket before the first probe
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-proc.Done():
		return l.diedMidPoll(port, proc)
	case <-time.After(hc.SettleDelay):
	}

	for attempt := 1; attempt <= hc.MaxAttempts; attempt++ {
		l.setAttempt(attempt)

		probeCtx, cancel := context.WithTimeout(ctx, hc.Timeout)
		ready := l.probe(probeCtx, port)
		cancel()

		l.metrics.HealthProbe(port, ready)

		if ready {
			log.Printf("Backend on port %d healthy after %d attempt(s)", port, attempt)
			return nil
		}

		if attempt == hc.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-proc.Done():
			return l.diedMidPoll(port, proc)
		case <-time.After(hc.Interval):
		}
	}

	return ErrHealthCheckTimeout(port, hc.MaxAttempts)
}

// diedMidPoll builds the error for a backend that exited during polling,
// logging the exit code or signal for diagnosis.
func (l *Launcher) diedMidPoll(port int, proc Process) error {
	reason := exitReason(proc.ExitError())
	log.Printf("Backend on port %d exited during health polling: %s", port, reason)
	return ErrProcessDied(port, fmt.Errorf("%s", reason))
}
