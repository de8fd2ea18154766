// Package types contains shared types used across the harness.
package types

import (
	"strings"
	"time"
)

// CheckStatus represents the possible states of a check execution
type CheckStatus string

const (
	CheckStatusPass  CheckStatus = "pass"
	CheckStatusFail  CheckStatus = "fail"
	CheckStatusSkip  CheckStatus = "skip"
	CheckStatusError CheckStatus = "error"
)

// CheckKind distinguishes the two ways a check is executed
type CheckKind string

// String implements the Stringer interface for CheckKind
func (k CheckKind) String() string {
	return string(k)
}

const (
	// CheckKindGoTest runs a Go test function or package in the agent workdir.
	CheckKindGoTest CheckKind = "gotest"
	// CheckKindScenario runs the agent binary end-to-end with a scenario environment.
	CheckKindScenario CheckKind = "scenario"
)

// CheckMetadata identifies a single runnable check within a phase
type CheckMetadata struct {
	ID       string
	Kind     CheckKind
	Phase    string
	FuncName string
	Package  string
	Scenario *ScenarioConfig
	Timeout  time.Duration
	RunAll   bool
}

// GetName returns a name for the check based on available fields
func (c CheckMetadata) GetName() string {
	if c.Kind == CheckKindScenario && c.Scenario != nil {
		return c.Scenario.Name
	}
	if c.FuncName != "" {
		return c.FuncName
	}
	if c.Package != "" {
		return c.Package
	}
	return c.ID
}

// CheckResult captures the outcome of a single check run
type CheckResult struct {
	Metadata  CheckMetadata
	Status    CheckStatus
	Error     error
	Duration  time.Duration
	SubChecks map[string]*CheckResult // Individual test results when running a whole package
	Stdout    string                  // Captured output for failing checks
	TimedOut  bool
}

// GetCheckDisplayName returns a formatted display name for a check based on its
// name and metadata. If the name is empty but a package is specified, the last
// package path element is used instead.
func GetCheckDisplayName(name string, metadata CheckMetadata) string {
	displayName := name
	if displayName == "" && metadata.Package != "" {
		pkgParts := strings.Split(metadata.Package, "/")
		displayName = pkgParts[len(pkgParts)-1] + " (package)"
	}
	if displayName == "" {
		displayName = metadata.ID
	}
	return displayName
}
