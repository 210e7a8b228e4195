// Package launcher starts the InsightsLM local backend service for the
// desktop UI: scan a fixed port range in ascending order, spawn the
// backend on each candidate, poll its health endpoint, and hand the first
// healthy port to the caller.
//
// The scan is strictly sequential. Each port attempt spawns at most one
// process, and a failed attempt's process is killed and observed dead
// before the next port is tried, so at most one backend child exists at
// any time. The first healthy port is immutable for the remainder of the
// session and is the single source of truth for all backend calls.
//
// Basic usage:
//
//	cfg, err := launcher.LoadConfig("launcher.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	l, err := launcher.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	port, err := l.Run(ctx)
//	if launcher.IsErrorCode(err, launcher.ErrorCodePortRangeExhausted) {
//		// ask the user: retry, continue without a backend, or quit
//	}
//
//	defer l.Shutdown(context.Background())
//
// Per-port failures (spawn errors, health timeouts, crashes during
// polling) are recovered locally by advancing the scan; only full
// exhaustion of the range is surfaced to the caller. Backend stdout and
// stderr are forwarded line by line to a configurable sink with terminal
// control sequences stripped, purely for diagnostics.
package launcher
