package types

import (
	"fmt"
)

// SpecMode controls what the SPEC_PATH environment variable points at when a
// scenario runs the agent binary.
type SpecMode string

const (
	// SpecModeFile points SPEC_PATH at the spec file named by the scenario.
	SpecModeFile SpecMode = "file"
	// SpecModeMissing points SPEC_PATH at a path that does not exist.
	SpecModeMissing SpecMode = "missing"
	// SpecModeMalformed points SPEC_PATH at a generated temp file containing
	// deliberately invalid YAML.
	SpecModeMalformed SpecMode = "malformed"
)

// Expectation describes the outcome a scenario asserts on the agent process.
type Expectation string

const (
	// ExpectSuccess requires the agent to exit 0.
	ExpectSuccess Expectation = "success"
	// ExpectGraceful requires the agent to exit on its own, with any code,
	// without panicking. This is the expectation for the degraded-input runs:
	// the agent is supposed to downgrade the error and keep going.
	ExpectGraceful Expectation = "graceful"
	// ExpectFailure requires a nonzero exit code.
	ExpectFailure Expectation = "failure"
)

// ScenarioConfig describes one end-to-end run of the agent binary
type ScenarioConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	SpecPath    string         `yaml:"spec_path,omitempty"`
	SpecMode    SpecMode       `yaml:"spec_mode,omitempty"`
	MaxAttempts int         `yaml:"max_attempts,omitempty"`
	Expect      Expectation `yaml:"expect,omitempty"`
	Timeout     *Duration   `yaml:"timeout,omitempty"`
}

// Validate checks a scenario for configuration mistakes that would otherwise
// surface mid-run.
func (s *ScenarioConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	switch s.SpecMode {
	case SpecModeFile, "":
		if s.SpecPath == "" && s.SpecMode == SpecModeFile {
			return fmt.Errorf("scenario %q: spec_path is required when spec_mode is 'file'", s.Name)
		}
	case SpecModeMissing, SpecModeMalformed:
		// SpecPath is generated or unused.
	default:
		return fmt.Errorf("scenario %q: unknown spec_mode %q", s.Name, s.SpecMode)
	}
	switch s.Expect {
	case ExpectSuccess, ExpectGraceful, ExpectFailure, "":
	default:
		return fmt.Errorf("scenario %q: unknown expectation %q", s.Name, s.Expect)
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("scenario %q: max_attempts cannot be negative", s.Name)
	}
	return nil
}

// Mode returns the effective spec mode, defaulting to SpecModeFile when the
// scenario names a spec file and leaving SPEC_PATH unset otherwise.
func (s *ScenarioConfig) Mode() SpecMode {
	if s.SpecMode != "" {
		return s.SpecMode
	}
	return SpecModeFile
}

// Expectation returns the effective expectation, defaulting to success.
func (s *ScenarioConfig) Expectation() Expectation {
	if s.Expect == "" {
		return ExpectSuccess
	}
	return s.Expect
}
