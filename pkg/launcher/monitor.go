package launcher

import (
	"context"
	"fmt"
	"log"
	"time"
)

// failureThreshold is the number of consecutive failed probes after
// handoff before the backend is reported down. A single dropped request
// during heavy transcription load should not raise an alarm.
const failureThreshold = 3

// Monitor watches the handed-off backend after a successful scan and
// reports when it stops answering or exits. It never restarts anything;
// recovery is the user's decision, surfaced through the UI layer.
// Monitor returns when the backend is reported down or ctx is cancelled.
func (l *Launcher) Monitor(ctx context.Context, interval time.Duration, onDown func(reason string)) {
	l.mu.Lock()
	port := l.healthyPort
	proc := l.proc
	l.mu.Unlock()

	if port == 0 || proc == nil {
		return
	}

	log.Printf("Backend monitor started (port %d, interval %v)", port, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0

	for {
		select {
		case <-ctx.Done():
			log.Printf("Backend monitor stopped (context cancelled)")
			return

		case <-proc.Done():
			reason := fmt.Sprintf("backend process exited: %s", exitReason(proc.ExitError()))
			log.Printf("Backend monitor: %s", reason)
			l.releaseBackend()
			l.publish(ctx, "process_exited", reason, map[string]string{"port": fmt.Sprintf("%d", port)})
			onDown(reason)
			return

		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, l.config.HealthCheck.Timeout)
			ready := l.probe(probeCtx, port)
			cancel()

			l.metrics.HealthProbe(port, ready)

			if ready {
				failures = 0
				continue
			}

			failures++
			if failures >= failureThreshold {
				reason := fmt.Sprintf("backend on port %d stopped answering health checks", port)
				log.Printf("Backend monitor: %s", reason)
				// The process may still be alive; kill it so a rescan can start clean
				if err := l.stopTracked(); err != nil {
					log.Printf("Backend monitor: error stopping backend: %v", err)
				}
				l.releaseBackend()
				l.publish(ctx, "unhealthy", reason, map[string]string{"port": fmt.Sprintf("%d", port)})
				onDown(reason)
				return
			}
		}
	}
}
