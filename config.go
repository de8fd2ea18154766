package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/flags"
)

// Config holds the application configuration
type Config struct {
	PlanFile         string
	WorkDir          string
	Target           string         // Agent binary exercised by end-to-end scenarios
	GoBinary         string
	Phase            string         // Run a single phase instead of the whole plan
	Profile          string         // Run the phases a plan profile selects
	RunInterval      time.Duration  // Interval between harness runs
	RunOnce          bool           // Indicates if the service should exit after one run
	MockListen       string         // Address the spawned mock API listens on
	MockURL          string         // External mock URL; when set, no mock is spawned
	MockReadyTimeout time.Duration  // How long to wait for the mock's health endpoint
	LogDir           string         // Directory to store run logs
	DefaultTimeout   time.Duration  // Default timeout for individual checks
	AllowSkips       bool           // Treat skipped checks as acceptable
	Log              *zap.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile := ctx.String(flags.Plan.Name)
	workDir := ctx.String(flags.WorkDir.Name)
	if planFile == "" {
		return nil, errors.New("plan file is required")
	}
	if workDir == "" {
		return nil, errors.New("work directory is required")
	}

	phase := ctx.String(flags.Phase.Name)
	profile := ctx.String(flags.Profile.Name)
	if phase != "" && profile != "" {
		return nil, errors.New("--phase and --profile are mutually exclusive")
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	// Resolve the absolute paths
	absPlanFile, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan file '%s': %w", planFile, err)
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}
	logDir, err := filepath.Abs(ctx.String(flags.LogDir.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory: %w", err)
	}

	target := ctx.String(flags.Target.Name)
	if target != "" {
		if target, err = filepath.Abs(target); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for target '%s': %w", target, err)
		}
	}

	return &Config{
		PlanFile:         absPlanFile,
		WorkDir:          absWorkDir,
		Target:           target,
		GoBinary:         ctx.String(flags.GoBinary.Name),
		Phase:            phase,
		Profile:          profile,
		RunInterval:      runInterval,
		RunOnce:          runOnce,
		MockListen:       ctx.String(flags.MockListen.Name),
		MockURL:          ctx.String(flags.MockURL.Name),
		MockReadyTimeout: ctx.Duration(flags.MockReadyTimeout.Name),
		LogDir:           logDir,
		DefaultTimeout:   ctx.Duration(flags.DefaultTimeout.Name),
		AllowSkips:       ctx.Bool(flags.AllowSkips.Name),
		Log:              log,
	}, nil
}
