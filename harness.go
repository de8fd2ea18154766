package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/exitcodes"
	"github.com/adaptive-agent/api-harness/logging"
	"github.com/adaptive-agent/api-harness/metrics"
	"github.com/adaptive-agent/api-harness/registry"
	"github.com/adaptive-agent/api-harness/runner"
	"github.com/adaptive-agent/api-harness/supervisor"
	"github.com/adaptive-agent/api-harness/types"
)

// stopTimeout bounds how long cleanup waits for the mock API to exit.
const stopTimeout = 10 * time.Second

// Harness drives the full verification run: it brings up the mock API,
// executes the plan's phases against it, and reports the results.
type Harness struct {
	ctx       context.Context
	config    *Config
	version   string
	registry  *registry.Registry
	runner    runner.PhaseRunner
	mock      *supervisor.Supervisor
	mockURL   string
	scheduler RunScheduler
	formatter ResultFormatter
	result    *runner.RunResult

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New assembles a Harness from config. The mock API process is not started
// here; Start owns the process lifecycle so cleanup stays in one place.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating harness with config",
		zap.String("workDir", config.WorkDir),
		zap.String("plan", config.PlanFile),
		zap.Duration("runInterval", config.RunInterval),
		zap.Bool("runOnce", config.RunOnce),
		zap.Bool("allowSkips", config.AllowSkips))

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		PlanFile:       config.PlanFile,
		DefaultTimeout: config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	phases, err := resolvePhaseSelection(reg, config)
	if err != nil {
		return nil, err
	}

	mockURL := config.MockURL
	if mockURL == "" {
		mockURL = fmt.Sprintf("http://%s", config.MockListen)
	}

	phaseRunner, err := runner.NewPhaseRunner(runner.Config{
		Registry:   reg,
		Phases:     phases,
		WorkDir:    config.WorkDir,
		Log:        config.Log,
		GoBinary:   config.GoBinary,
		Target:     config.Target,
		MockURL:    mockURL,
		AllowSkips: config.AllowSkips,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create phase runner: %w", err)
	}
	config.Log.Info("harness.New: created registry and phase runner")

	h := &Harness{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		runner:           phaseRunner,
		mockURL:          mockURL,
		formatter:        NewConsoleResultFormatter(config.Log),
		scheduler:        NewDefaultRunScheduler(config.RunInterval, config.RunOnce, config.Log),
		shutdownCallback: shutdownCallback,
	}

	if config.MockURL == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate own executable for mock API: %w", err)
		}
		h.mock, err = supervisor.New(supervisor.Config{
			Command:   exe,
			Args:      []string{"mock", "--listen", config.MockListen},
			HealthURL: mockURL + "/healthz",
			Log:       config.Log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mock API supervisor: %w", err)
		}
	}

	return h, nil
}

// resolvePhaseSelection turns the phase/profile flags into an explicit phase
// id list; empty means run the whole plan.
func resolvePhaseSelection(reg *registry.Registry, config *Config) ([]string, error) {
	if config.Phase != "" {
		return []string{config.Phase}, nil
	}
	if config.Profile != "" {
		phases, err := reg.ProfilePhases(config.Profile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve profile %q: %w", config.Profile, err)
		}
		return phases, nil
	}
	return nil, nil
}

// Start launches the mock API, waits until it answers health checks, then
// hands the run loop to the scheduler.
func (h *Harness) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", zap.Any("error", r))
			h.cleanup()
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.ctx = ctx

	if err := h.startMock(ctx); err != nil {
		h.cleanup()
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	h.scheduler.RegisterCallback(h.runPhases)

	err := h.scheduler.Start(ctx)
	if err != nil {
		// For runtime errors (like panics or configuration issues), return exit code 2
		h.config.Log.Error("Runtime error running phases", zap.Error(err))
		h.cleanup()
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// If in run-once mode, tear down and return
	if h.config.RunOnce {
		h.config.Log.Info("Run completed, exiting (run-once mode)")
		h.cleanup()

		// Check if any checks failed and return the appropriate exit code
		if h.result != nil && h.result.Status == types.CheckStatusFail {
			h.config.Log.Warn("Run-once completed with failures, returning exit code 1")
			return NewPhaseFailureError(h.result.String())
		}

		// Only need to call this when we're in run-once mode and everything passed
		go func() {
			h.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	h.config.Log.Debug("harness started successfully")
	return nil
}

// startMock spawns the mock API process (unless an external URL was given)
// and blocks until its health endpoint responds.
func (h *Harness) startMock(ctx context.Context) error {
	if h.mock == nil {
		h.config.Log.Info("Using external mock API", zap.String("url", h.mockURL))
		return nil
	}

	h.config.Log.Info("Starting mock API server", zap.String("listen", h.config.MockListen))
	if err := h.mock.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mock API server: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, h.config.MockReadyTimeout)
	defer cancel()
	if err := h.mock.WaitReady(readyCtx); err != nil {
		return fmt.Errorf("mock API server never became ready: %w", err)
	}
	h.config.Log.Info("Mock API server is ready", zap.String("url", h.mockURL))
	return nil
}

// runPhases runs the configured phases once and processes the results.
func (h *Harness) runPhases() error {
	h.config.Log.Info("Running phases...")

	fileLogger, err := logging.NewFileLogger(h.config.LogDir, uuid.New().String())
	if err != nil {
		h.config.Log.Warn("Failed to create file logger, continuing without run logs", zap.Error(err))
	} else if withLogger, ok := h.runner.(runner.PhaseRunnerWithFileLogger); ok {
		withLogger.SetFileLogger(fileLogger)
	}

	result, err := h.runner.RunAllPhases(h.ctx)
	if err != nil {
		// This is a runtime error (not a check failure)
		h.config.Log.Error("Runtime error running phases", zap.Error(err))
		return NewRuntimeError(err)
	}
	h.result = result

	if err := h.formatter.FormatResults(result); err != nil {
		h.config.Log.Error("Error formatting results", zap.Error(err))
	}

	metrics.RecordRun(
		result.RunID,
		string(result.Status),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Duration,
	)

	if fileLogger != nil {
		if err := fileLogger.LogSummary(result.String()); err != nil {
			h.config.Log.Warn("Failed to write run summary", zap.Error(err))
		}
		if err := fileLogger.Complete(); err != nil {
			h.config.Log.Warn("Failed to complete file logger", zap.Error(err))
		}
		h.config.Log.Info("Run logs written", zap.String("dir", fileLogger.RunDir()))
	}

	h.config.Log.Info("Run completed",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)))
	return nil
}

// cleanup stops the mock API process and clears any environment variables a
// scenario may have left behind. Safe to call more than once.
func (h *Harness) cleanup() {
	if h.mock != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := h.mock.Stop(stopCtx); err != nil {
			h.config.Log.Warn("Failed to stop mock API server", zap.Error(err))
		}
	}
	runner.ScrubAgentEnv()
}

// Stop stops the harness service, including the mock API process.
func (h *Harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping harness")

	if err := h.scheduler.Stop(); err != nil {
		h.config.Log.Warn("Error stopping scheduler", zap.Error(err))
	}
	h.cleanup()

	h.config.Log.Info("Harness stopped successfully")
	return nil
}

// Stopped returns true if the harness service is stopped.
func (h *Harness) Stopped() bool {
	return h.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving on.
func (h *Harness) WaitForShutdown(ctx context.Context) error {
	return h.scheduler.WaitForShutdown(ctx)
}
