package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	harness "github.com/adaptive-agent/api-harness"
	"github.com/adaptive-agent/api-harness/flags"
	"github.com/adaptive-agent/api-harness/mockapi"
	"github.com/adaptive-agent/api-harness/service"
)

var (
	Version   = "v0.3.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "api-harness"
	app.Usage = "Adaptive API Agent Verification Harness"
	app.Description = "api-harness runs the agent's verification phases against a mock API"
	app.Flags = flags.Flags
	app.Action = run
	app.Commands = []*cli.Command{
		mockCommand(),
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if harness.IsRuntimeError(err) {
				// For runtime errors, use exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if harness.IsPhaseFailureError(err) {
				// For check failures, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	logger, err := harness.NewLogger(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return harness.NewRuntimeError(fmt.Errorf("failed to create logger: %w", err))
	}
	defer func() { _ = logger.Sync() }()

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(ctx.App.Name),
		otelconfig.WithServiceVersion(ctx.App.Version),
	)
	if err != nil {
		return harness.NewRuntimeError(fmt.Errorf("failed to setup open telemetry: %w", err))
	}
	defer otelShutdown()

	cfg, err := harness.NewConfig(ctx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return harness.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	// Start the health and metrics servers
	svc := service.New(logger)
	svc.Start(ctx.Context)
	defer svc.Shutdown()

	appCtx, cancel := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownCh := make(chan error, 1)
	h, err := harness.New(appCtx, cfg, Version, func(err error) {
		shutdownCh <- err
	})
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return harness.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	if err := h.Start(appCtx); err != nil {
		return err
	}

	select {
	case err := <-shutdownCh:
		if !h.Stopped() {
			_ = h.Stop(context.Background())
		}
		return err
	case <-appCtx.Done():
		logger.Info("Shutdown signal received")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := h.Stop(stopCtx); err != nil {
			logger.Error("Error stopping harness", zap.Error(err))
		}
		return h.WaitForShutdown(stopCtx)
	}
}

func mockCommand() *cli.Command {
	return &cli.Command{
		Name:        "mock",
		Usage:       "Run the mock API server in the foreground",
		Description: "Serves the rate-limited mock API the verification phases run against",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "Address for the mock API to listen on",
				Value:   "127.0.0.1:5000",
				EnvVars: []string{"API_HARNESS_MOCK_LISTEN"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level",
				Value:   "info",
				EnvVars: []string{"API_HARNESS_LOG_LEVEL"},
			},
		},
		Action: runMock,
	}
}

func runMock(ctx *cli.Context) error {
	logger, err := harness.NewLogger(ctx.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	srv := mockapi.NewServer(ctx.String("listen"), logger)

	sigCtx, cancel := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		logger.Info("Mock API shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}
