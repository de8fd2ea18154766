package types

import (
	"fmt"
)

// PhaseKind identifies how the checks of a phase are produced
type PhaseKind string

const (
	PhaseKindGoTest   PhaseKind = "gotest"
	PhaseKindScenario PhaseKind = "scenario"
)

// PackageConfig names a Go test package, optionally narrowed to one function
type PackageConfig struct {
	Name    string    `yaml:"name,omitempty"`
	Package string    `yaml:"package"`
	RunAll  bool      `yaml:"run_all,omitempty"`
	Timeout *Duration `yaml:"timeout,omitempty"`
}

// PhaseConfig represents one phase of the harness run
type PhaseConfig struct {
	ID          string           `yaml:"id"`
	Description string           `yaml:"description,omitempty"`
	Kind        PhaseKind        `yaml:"kind,omitempty"`
	Packages    []PackageConfig  `yaml:"packages,omitempty"`
	Scenarios   []ScenarioConfig `yaml:"scenarios,omitempty"`
	Timeout     *Duration        `yaml:"timeout,omitempty"`
}

// EffectiveKind returns the phase kind, defaulting from the configured content.
func (p *PhaseConfig) EffectiveKind() PhaseKind {
	if p.Kind != "" {
		return p.Kind
	}
	if len(p.Scenarios) > 0 {
		return PhaseKindScenario
	}
	return PhaseKindGoTest
}

// ProfileConfig selects a subset of phases, optionally inheriting the
// selection of other profiles.
type ProfileConfig struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description,omitempty"`
	Inherits    []string `yaml:"inherits,omitempty"`
	Phases      []string `yaml:"phases,omitempty"`
}

// PlanConfig represents the complete phase plan
type PlanConfig struct {
	Phases   []PhaseConfig   `yaml:"phases"`
	Profiles []ProfileConfig `yaml:"profiles,omitempty"`
	Metadata struct {
		Timeouts map[string]Duration `yaml:"timeouts"`
	} `yaml:"metadata"`
}

// ResolveInherited merges phase selections from parent profiles into this
// profile recursively.
//
// A profile can inherit the phase selection of other profiles named in its
// 'Inherits' field. Inheritance is recursive, so if profile C inherits from B,
// and B inherits from A, C selects the phases of both. The rules are:
// - The profile's own phases come first and take precedence for ordering
// - Phases are deduplicated by id
// - Inheritance is depth-first, more distant ancestors are processed first
func (p *ProfileConfig) ResolveInherited(profiles map[string]ProfileConfig) error {
	processed := make(map[string]bool)
	return p.resolveInheritedRecursive(profiles, processed)
}

func (p *ProfileConfig) resolveInheritedRecursive(profiles map[string]ProfileConfig, processed map[string]bool) error {
	if len(p.Inherits) == 0 {
		return nil
	}

	var merged []string
	seen := make(map[string]bool)

	// Copy the profile's own selection first so the child takes precedence.
	for _, phase := range p.Phases {
		if !seen[phase] {
			merged = append(merged, phase)
			seen[phase] = true
		}
	}

	for _, inheritFrom := range p.Inherits {
		if processed[inheritFrom] {
			return fmt.Errorf("circular inheritance detected for profile %q", inheritFrom)
		}

		parent, ok := profiles[inheritFrom]
		if !ok {
			return fmt.Errorf("profile %q inherits from non-existent profile %q", p.ID, inheritFrom)
		}

		processed[inheritFrom] = true

		if err := parent.resolveInheritedRecursive(profiles, processed); err != nil {
			return fmt.Errorf("resolving inheritance for parent profile %q: %w", inheritFrom, err)
		}

		for _, phase := range parent.Phases {
			if !seen[phase] {
				merged = append(merged, phase)
				seen[phase] = true
			}
		}

		processed[inheritFrom] = false
	}

	p.Phases = merged
	return nil
}
