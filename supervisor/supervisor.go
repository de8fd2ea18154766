// Package supervisor manages the mock API server child process: start it,
// wait until it answers health checks, and make sure it never outlives the
// harness run.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// State describes the child process lifecycle
type State int

const (
	StateNew State = iota
	StateRunning
	StateStopped
)

const (
	readyPollInterval = 200 * time.Millisecond
	stopGracePeriod   = 5 * time.Second
)

// Config holds configuration for creating a Supervisor
type Config struct {
	Command   string   // Binary to run
	Args      []string // Arguments
	Env       []string // Extra environment entries appended to os.Environ()
	HealthURL string   // URL polled by WaitReady
	Log       *zap.Logger
}

// Supervisor supervises a single child process
type Supervisor struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	state    State
	exitCode int
	exitErr  error
	waitDone chan struct{}
}

// New creates a supervisor for the given command
func New(cfg Config) (*Supervisor, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Supervisor{
		cfg: cfg,
		log: cfg.Log,
	}, nil
}

// Start launches the child process. It does not wait for readiness; call
// WaitReady for that.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return fmt.Errorf("process already running")
	}

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	s.log.Info("Starting child process",
		zap.String("command", s.cfg.Command),
		zap.Strings("args", s.cfg.Args))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.cfg.Command, err)
	}

	s.cmd = cmd
	s.state = StateRunning
	s.waitDone = make(chan struct{})

	// Reap the child as soon as it exits so Stop can tell "already dead"
	// from "needs a signal".
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.state = StateStopped
		s.exitErr = err
		s.exitCode = cmd.ProcessState.ExitCode()
		close(s.waitDone)
		s.mu.Unlock()
		s.log.Debug("Child process exited",
			zap.Int("exit_code", cmd.ProcessState.ExitCode()))
	}()

	return nil
}

// WaitReady polls the health URL until it answers 200, the child dies, or the
// context expires. It replaces the fixed startup sleep the harness would
// otherwise need.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	if s.cfg.HealthURL == "" {
		return fmt.Errorf("no health URL configured")
	}

	client := &http.Client{Timeout: readyPollInterval}
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", s.cfg.HealthURL, ctx.Err())
		case <-s.waitDoneChan():
			return fmt.Errorf("process exited before becoming healthy (exit code %d)", s.ExitCode())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HealthURL, nil)
			if err != nil {
				return fmt.Errorf("building health request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				s.log.Debug("Health check not ready", zap.Error(err))
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				s.log.Info("Child process healthy", zap.String("url", s.cfg.HealthURL))
				return nil
			}
			s.log.Debug("Health check returned non-200", zap.Int("status", resp.StatusCode))
		}
	}
}

// Stop terminates the child process: SIGTERM first, SIGKILL after the grace
// period. Stopping an already-dead or never-started process is not an error.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		s.log.Debug("Child process already stopped, nothing to do")
		return nil
	}
	cmd := s.cmd
	waitDone := s.waitDone
	s.mu.Unlock()

	s.log.Info("Stopping child process", zap.Int("pid", cmd.Process.Pid))

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process may have exited between the state check and the signal.
		s.log.Debug("SIGTERM failed", zap.Error(err))
	}

	select {
	case <-waitDone:
		return nil
	case <-time.After(stopGracePeriod):
	case <-ctx.Done():
	}

	s.log.Warn("Child process did not exit in time, killing it")
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("killing process: %w", err)
	}
	<-waitDone
	return nil
}

// Running reports whether the child process is alive
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// ExitCode returns the child's exit code, or -1 while it is running
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return -1
	}
	return s.exitCode
}

func (s *Supervisor) waitDoneChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitDone
}
