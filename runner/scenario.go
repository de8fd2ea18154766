package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/types"
)

// Environment variables through which the agent binary is configured.
const (
	SpecPathEnvVar    = "SPEC_PATH"
	MaxAttemptsEnvVar = "MAX_ATTEMPTS"
)

// AgentEnvVars lists every variable the harness may set for the agent. They
// are scrubbed from the harness environment when a run ends.
var AgentEnvVars = []string{SpecPathEnvVar, MaxAttemptsEnvVar, MockURLEnvVar}

// ScrubAgentEnv removes the agent configuration variables from the harness
// process environment. Called from the run cleanup path so the variables never
// survive a run, whatever its outcome.
func ScrubAgentEnv() {
	for _, name := range AgentEnvVars {
		os.Unsetenv(name)
	}
}

// malformedSpecContent is the deliberately invalid YAML used by the
// malformed-spec scenario. The broken flow sequence and the tab indentation
// each independently fail the parser.
const malformedSpecContent = "openapi: [unclosed sequence\npaths:\n\t/users: {invalid\n"

// runScenario runs the agent binary once under the scenario's environment and
// evaluates the scenario's expectation against the process outcome.
func (r *runner) runScenario(ctx context.Context, metadata types.CheckMetadata) (*types.CheckResult, error) {
	scenario := metadata.Scenario
	if scenario == nil {
		return nil, fmt.Errorf("check %s has no scenario config", metadata.ID)
	}
	if r.target == "" {
		return nil, fmt.Errorf("scenario %s requires a target binary (--target)", scenario.Name)
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("scenario %s", scenario.Name))
	defer span.End()

	if metadata.Timeout != 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, metadata.Timeout)
		defer cancel()
	}

	env, cleanup, err := r.buildScenarioEnv(scenario)
	if err != nil {
		return nil, fmt.Errorf("building environment for scenario %s: %w", scenario.Name, err)
	}
	// The malformed fixture must not escape the run, even when the agent
	// errors or times out.
	defer cleanup()

	cmd := exec.CommandContext(ctx, r.target)
	cmd.Dir = r.workDir
	cmd.Env = env

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.log.Info("Running scenario",
		zap.String("scenario", scenario.Name),
		zap.String("target", r.target),
		zap.String("spec_mode", string(scenario.Mode())),
		zap.String("expect", string(scenario.Expectation())))

	runErr := cmd.Run()

	result := &types.CheckResult{
		Metadata: metadata,
	}

	if ctx.Err() == context.DeadlineExceeded {
		result.Status = types.CheckStatusFail
		result.TimedOut = true
		result.Error = fmt.Errorf("scenario timed out after %v", metadata.Timeout)
		result.Stdout = output.String()
		return result, nil
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// The process never started; that is a harness malfunction
			// rather than a scenario verdict.
			return nil, fmt.Errorf("starting target for scenario %s: %w", scenario.Name, runErr)
		}
	}

	result.Status, result.Error = evaluateExpectation(scenario, exitCode, output.String())
	if result.Status == types.CheckStatusFail {
		result.Stdout = output.String()
	}

	r.log.Info("Scenario finished",
		zap.String("scenario", scenario.Name),
		zap.Int("exit_code", exitCode),
		zap.String("status", string(result.Status)))

	return result, nil
}

// buildScenarioEnv assembles the child environment for a scenario run. The
// returned cleanup removes any generated fixture file.
func (r *runner) buildScenarioEnv(scenario *types.ScenarioConfig) ([]string, func(), error) {
	env := scrubbedEnviron()
	cleanup := func() {}

	switch scenario.Mode() {
	case types.SpecModeFile:
		if scenario.SpecPath != "" {
			specPath := scenario.SpecPath
			if !filepath.IsAbs(specPath) {
				specPath = filepath.Join(r.workDir, specPath)
			}
			env = append(env, fmt.Sprintf("%s=%s", SpecPathEnvVar, specPath))
		}
	case types.SpecModeMissing:
		env = append(env, fmt.Sprintf("%s=%s", SpecPathEnvVar,
			filepath.Join(os.TempDir(), fmt.Sprintf("spec-missing-%d.yaml", time.Now().UnixNano()))))
	case types.SpecModeMalformed:
		fixture, err := writeMalformedFixture()
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			if err := os.Remove(fixture); err != nil && !os.IsNotExist(err) {
				r.log.Warn("Failed to remove malformed spec fixture",
					zap.String("path", fixture), zap.Error(err))
			}
		}
		env = append(env, fmt.Sprintf("%s=%s", SpecPathEnvVar, fixture))
	}

	if scenario.MaxAttempts > 0 {
		env = append(env, fmt.Sprintf("%s=%d", MaxAttemptsEnvVar, scenario.MaxAttempts))
	}
	if r.mockURL != "" {
		env = append(env, fmt.Sprintf("%s=%s", MockURLEnvVar, r.mockURL))
	}

	return env, cleanup, nil
}

// scrubbedEnviron returns the harness environment with the agent variables
// removed, so a scenario only sees the values it configures.
func scrubbedEnviron() []string {
	var env []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if isAgentEnvVar(name) {
			continue
		}
		env = append(env, kv)
	}
	return env
}

func isAgentEnvVar(name string) bool {
	for _, agentVar := range AgentEnvVars {
		if name == agentVar {
			return true
		}
	}
	return false
}

// writeMalformedFixture writes the invalid-YAML fixture to a temp file and
// returns its path.
func writeMalformedFixture() (string, error) {
	f, err := os.CreateTemp("", "spec-malformed-*.yaml")
	if err != nil {
		return "", fmt.Errorf("creating malformed spec fixture: %w", err)
	}
	if _, err := f.WriteString(malformedSpecContent); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing malformed spec fixture: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing malformed spec fixture: %w", err)
	}
	return f.Name(), nil
}

// evaluateExpectation turns a process outcome into a check verdict.
func evaluateExpectation(scenario *types.ScenarioConfig, exitCode int, output string) (types.CheckStatus, error) {
	switch scenario.Expectation() {
	case types.ExpectSuccess:
		if exitCode != 0 {
			return types.CheckStatusFail,
				fmt.Errorf("expected exit code 0, got %d", exitCode)
		}
	case types.ExpectFailure:
		if exitCode == 0 {
			return types.CheckStatusFail,
				fmt.Errorf("expected a nonzero exit code, got 0")
		}
	case types.ExpectGraceful:
		// The agent is expected to downgrade the bad input and keep running;
		// a panic means its error handling is broken.
		if strings.Contains(output, "panic:") {
			return types.CheckStatusFail,
				fmt.Errorf("agent panicked on degraded input (exit code %d)", exitCode)
		}
	}
	return types.CheckStatusPass, nil
}
