package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JoseAndresCamachoGuadamuz/InsightsLM/pkg/bridge"
	"github.com/JoseAndresCamachoGuadamuz/InsightsLM/pkg/launcher"
	"github.com/JoseAndresCamachoGuadamuz/InsightsLM/pkg/prompt"
)

var (
	configPath      = flag.String("config", "launcher.yaml", "Path to launcher configuration file")
	bridgePort      = flag.Int("bridge-port", 8787, "UI bridge port (loopback only)")
	metricsPort     = flag.Int("metrics-port", 9092, "Metrics server port")
	monitorInterval = flag.Duration("monitor-interval", 5*time.Second, "Health monitor probe interval")
)

func main() {
	flag.Parse()

	log.Printf("Starting backend launcher")
	log.Printf("  Config: %s", *configPath)
	log.Printf("  Bridge port: %d", *bridgePort)
	log.Printf("  Metrics port: %d", *metricsPort)

	config, err := launcher.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	metrics := launcher.NewPrometheusMetricsCollector("insightslm")

	decisions := make(chan prompt.Choice, 1)
	br := bridge.NewServer(decisions)
	log.Printf("Session ID: %s", br.SessionID())

	l, err := launcher.New(config,
		launcher.WithMetricsCollector(metrics),
		launcher.WithEventPublisher(br),
		launcher.WithLineSink(br.ForwardLogLine),
	)
	if err != nil {
		log.Fatalf("Failed to create launcher: %v", err)
	}
	br.SetSource(l)

	// Start bridge server
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", *bridgePort)
		log.Printf("Bridge server listening on %s", addr)
		if err := http.ListenAndServe(addr, br.Handler()); err != nil {
			log.Fatalf("Bridge server error: %v", err)
		}
	}()

	// Start metrics server
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", *metricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
		log.Printf("Metrics server listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %s, shutting down", sig)
		cancel()
	}()

	code := run(ctx, l, decisions)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := l.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	log.Printf("Backend launcher stopped")
	os.Exit(code)
}

// run drives the scan/decision loop until the user quits or the
// process is signalled. It returns the exit code.
func run(ctx context.Context, l *launcher.Launcher, decisions chan prompt.Choice) int {
	for {
		port, err := l.Run(ctx)
		if err == nil {
			log.Printf("Backend healthy on port %d", port)
			switch waitWhileHealthy(ctx, l, decisions) {
			case prompt.ChoiceQuit:
				return 0
			default:
				// Backend went down; scan again
				continue
			}
		}

		if ctx.Err() != nil {
			return 0
		}

		log.Printf("Backend startup failed: %v", err)
		if suggestion := launcher.GetSuggestion(err); suggestion != "" {
			log.Printf("Suggestion: %s", suggestion)
		}

		switch awaitDecision(ctx, decisions, err) {
		case prompt.ChoiceRetry:
			log.Printf("Retrying backend startup")
		case prompt.ChoiceContinue:
			log.Printf("Continuing without a backend")
			if waitWithoutBackend(ctx, decisions) == prompt.ChoiceQuit {
				return 0
			}
			log.Printf("Retrying backend startup")
		case prompt.ChoiceQuit:
			if ctx.Err() != nil {
				return 0
			}
			return 1
		}
	}
}

// waitWhileHealthy blocks while the backend is up. It returns
// ChoiceQuit when the user quits or the context ends, and
// ChoiceRetry when the backend goes down and a rescan is due.
func waitWhileHealthy(ctx context.Context, l *launcher.Launcher, decisions <-chan prompt.Choice) prompt.Choice {
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	down := make(chan string, 1)
	go l.Monitor(monitorCtx, *monitorInterval, func(reason string) {
		down <- reason
	})

	for {
		select {
		case <-ctx.Done():
			return prompt.ChoiceQuit
		case reason := <-down:
			log.Printf("Backend down: %s", reason)
			return prompt.ChoiceRetry
		case choice := <-decisions:
			if choice == prompt.ChoiceQuit {
				return prompt.ChoiceQuit
			}
			// Retry and continue are meaningless while healthy
		}
	}
}

// awaitDecision blocks until a retry/continue/quit decision arrives
// from the bridge or, when stdin is a terminal, the console prompt.
// Context cancellation counts as quit.
func awaitDecision(ctx context.Context, decisions <-chan prompt.Choice, cause error) prompt.Choice {
	termCh := make(chan prompt.Choice, 1)
	if prompt.Interactive() {
		go func() {
			choice, err := prompt.Ask(os.Stdin, os.Stdout, cause.Error())
			if err != nil {
				log.Printf("Prompt error: %v", err)
				return
			}
			termCh <- choice
		}()
	} else {
		log.Printf("Waiting for a decision on the bridge (retry, continue, or quit)")
	}

	select {
	case <-ctx.Done():
		return prompt.ChoiceQuit
	case choice := <-decisions:
		return choice
	case choice := <-termCh:
		return choice
	}
}

// waitWithoutBackend idles after a "continue" decision. A later retry
// from the bridge resumes scanning; quit or cancellation exits.
func waitWithoutBackend(ctx context.Context, decisions <-chan prompt.Choice) prompt.Choice {
	for {
		select {
		case <-ctx.Done():
			return prompt.ChoiceQuit
		case choice := <-decisions:
			switch choice {
			case prompt.ChoiceRetry:
				return prompt.ChoiceRetry
			case prompt.ChoiceQuit:
				return prompt.ChoiceQuit
			}
		}
	}
}
