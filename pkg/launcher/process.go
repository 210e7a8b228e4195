package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is the handle the launcher holds on a spawned backend.
// The real implementation wraps exec.Cmd; tests inject fakes via WithStartFunc.
type Process interface {
	// PID returns the OS process id
	PID() int

	// Done is closed when the process has exited
	Done() <-chan struct{}

	// ExitError returns the exit error after Done is closed (nil on clean exit)
	ExitError() error

	// Signal sends a signal to the process
	Signal(sig os.Signal) error

	// Kill forcibly terminates the process
	Kill() error
}

// StartFunc spawns the backend bound to the given port.
type StartFunc func(ctx context.Context, port int) (Process, error)

// osProcess wraps a started exec.Cmd
type osProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Done() <-chan struct{} {
	return p.done
}

func (p *osProcess) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *osProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *osProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// startBackend spawns the backend process bound to the given port.
// A returned handle means the OS accepted the spawn, not that the
// service is ready; readiness is waitUntilHealthy's job.
func (l *Launcher) startBackend(ctx context.Context, port int) (Process, error) {
	cmd := exec.Command(l.config.CommandPath(), l.config.ExpandArgs(port)...)

	if l.config.Backend.WorkDir != "" {
		cmd.Dir = l.config.Backend.WorkDir
	}

	env := os.Environ()
	env = append(env, fmt.Sprintf("INSIGHTSLM_PORT=%d", port))
	for k, v := range l.config.Backend.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	// Forward backend output through the line sink, one stream each
	stdout := newLineWriter(port, "stdout", l.lineSink)
	stderr := newLineWriter(port, "stderr", l.lineSink)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackendNotFound(l.config.CommandPath()).WithCause(err)
		}
		return nil, ErrSpawnFailed(port, err)
	}

	proc := &osProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	// Reap the child as soon as it exits so Done observers see it promptly
	go func() {
		err := cmd.Wait()
		stdout.Flush()
		stderr.Flush()
		proc.mu.Lock()
		proc.exitErr = err
		proc.mu.Unlock()
		close(proc.done)
	}()

	return proc, nil
}

// stopProcess terminates a backend process: SIGTERM first, then SIGKILL
// once the grace period expires. Blocks until the process is observed dead,
// which upholds the one-live-backend invariant between port attempts.
func stopProcess(proc Process, grace time.Duration) error {
	select {
	case <-proc.Done():
		return nil
	default:
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Signal failure usually means the process is already gone
		select {
		case <-proc.Done():
			return nil
		case <-time.After(grace):
			return fmt.Errorf("process did not exit after failed SIGTERM")
		}
	}

	select {
	case <-proc.Done():
		return nil
	case <-time.After(grace):
	}

	if err := proc.Kill(); err != nil {
		select {
		case <-proc.Done():
			return nil
		default:
			return fmt.Errorf("force kill: %w", err)
		}
	}

	select {
	case <-proc.Done():
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("process did not die after SIGKILL")
	}
}

// exitReason renders a process exit error for diagnostics, including the
// exit code or terminating signal when available.
func exitReason(err error) string {
	if err == nil {
		return "exit status 0"
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return fmt.Sprintf("terminated by signal %s", ws.Signal())
		}
		return fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}

	return err.Error()
}
