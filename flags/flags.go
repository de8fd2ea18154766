package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "API_HARNESS"

// PrefixEnvVar returns the environment variable names for a flag, namespaced
// under the application prefix.
func PrefixEnvVar(prefix, suffix string) []string {
	return []string{prefix + "_" + suffix}
}

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the phase plan file (eg. 'plan.yaml')",
	}
	WorkDir = &cli.StringFlag{
		Name:     "workdir",
		Value:    "",
		Required: true,
		EnvVars:  PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:    "Directory containing the agent's test packages",
	}
	Target = &cli.StringFlag{
		Name:    "target",
		Value:   "",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "TARGET"),
		Usage:   "Path to the agent binary exercised by end-to-end scenarios",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running test phases",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between harness runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Phase = &cli.StringFlag{
		Name:    "phase",
		Value:   "",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "PHASE"),
		Usage:   "Run a single phase from the plan (eg. 'unit')",
	}
	Profile = &cli.StringFlag{
		Name:    "profile",
		Value:   "",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "PROFILE"),
		Usage:   "Run the phases selected by a plan profile (eg. 'smoke')",
	}
	MockListen = &cli.StringFlag{
		Name:    "mock-listen",
		Value:   "127.0.0.1:5000",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "MOCK_LISTEN"),
		Usage:   "Address the spawned mock API server listens on",
	}
	MockURL = &cli.StringFlag{
		Name:    "mock-url",
		Value:   "",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "MOCK_URL"),
		Usage:   "URL of an externally managed mock API server. When set, the harness does not spawn one.",
	}
	MockReadyTimeout = &cli.DurationFlag{
		Name:    "mock-ready-timeout",
		Value:   10 * time.Second,
		EnvVars: PrefixEnvVar(EnvVarPrefix, "MOCK_READY_TIMEOUT"),
		Usage:   "How long to wait for the mock API server to become healthy",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run harness logs",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   5 * time.Minute,
		EnvVars: PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Default timeout for individual checks, can be overridden by the plan",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: PrefixEnvVar(EnvVarPrefix, "LOG_LEVEL"),
		Usage:   "Log level (debug, info, warn, error)",
	}
	AllowSkips = &cli.BoolFlag{
		Name:    "allow-skips",
		Usage:   "Treat skipped checks as acceptable instead of failing the phase",
		Value:   false,
		EnvVars: PrefixEnvVar(EnvVarPrefix, "ALLOW_SKIPS"),
	}
)

var requiredFlags = []cli.Flag{
	Plan,
	WorkDir,
}

var optionalFlags = []cli.Flag{
	Target,
	GoBinary,
	RunInterval,
	Phase,
	Profile,
	MockListen,
	MockURL,
	MockReadyTimeout,
	LogDir,
	DefaultTimeout,
	LogLevel,
	AllowSkips,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
