// Package registry loads the phase plan and expands it into runnable checks.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/adaptive-agent/api-harness/types"
)

// Registry manages the phase plan and the checks derived from it
type Registry struct {
	config Config
	plan   *types.PlanConfig
	checks []types.CheckMetadata
	phases []types.PhaseConfig
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            *zap.Logger
	PlanFile       string
	DefaultTimeout time.Duration
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadPlan(cfg.PlanFile); err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	cfg.Log.Debug("Registry loaded",
		zap.Int("phases", len(r.phases)),
		zap.Int("checks", len(r.checks)))

	return r, nil
}

// loadPlan loads the phase plan and expands its checks
func (r *Registry) loadPlan(cfgPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := r.validatePlan(plan); err != nil {
		return err
	}

	if err := r.validateProfileInheritance(plan); err != nil {
		return fmt.Errorf("failed to resolve profile inheritance: %w", err)
	}

	checks, err := r.discoverChecks(plan)
	if err != nil {
		return fmt.Errorf("failed to discover checks: %w", err)
	}

	r.plan = plan
	r.phases = plan.Phases
	r.checks = checks

	return nil
}

// validatePlan rejects plans that would otherwise fail mid-run
func (r *Registry) validatePlan(plan *types.PlanConfig) error {
	if len(plan.Phases) == 0 {
		return fmt.Errorf("plan contains no phases")
	}

	seen := make(map[string]bool)
	for i := range plan.Phases {
		phase := &plan.Phases[i]
		if phase.ID == "" {
			return fmt.Errorf("phase %d has no id", i)
		}
		if seen[phase.ID] {
			return fmt.Errorf("duplicate phase id %q", phase.ID)
		}
		seen[phase.ID] = true

		switch phase.EffectiveKind() {
		case types.PhaseKindGoTest:
			if len(phase.Packages) == 0 {
				return fmt.Errorf("phase %q has no packages", phase.ID)
			}
			for _, pkg := range phase.Packages {
				if pkg.Package == "" {
					return fmt.Errorf("phase %q has a package entry without a package path", phase.ID)
				}
			}
		case types.PhaseKindScenario:
			if len(phase.Scenarios) == 0 {
				return fmt.Errorf("phase %q has no scenarios", phase.ID)
			}
			for i := range phase.Scenarios {
				if err := phase.Scenarios[i].Validate(); err != nil {
					return fmt.Errorf("phase %q: %w", phase.ID, err)
				}
			}
		default:
			return fmt.Errorf("phase %q has unknown kind %q", phase.ID, phase.Kind)
		}
	}

	for _, profile := range plan.Profiles {
		for _, phaseID := range profile.Phases {
			if !seen[phaseID] {
				return fmt.Errorf("profile %q references unknown phase %q", profile.ID, phaseID)
			}
		}
	}

	return nil
}

// validateProfileInheritance checks profile inheritance resolution
func (r *Registry) validateProfileInheritance(plan *types.PlanConfig) error {
	if plan.Profiles == nil {
		return nil
	}

	profileMap := make(map[string]types.ProfileConfig)
	for _, profile := range plan.Profiles {
		profileMap[profile.ID] = profile
	}

	// Check for circular inheritance before resolving
	for _, profile := range plan.Profiles {
		if err := r.checkCircularInheritance(profile.ID, profile.Inherits, profileMap, make(map[string]bool)); err != nil {
			return fmt.Errorf("circular inheritance detected: %w", err)
		}
	}

	for i := range plan.Profiles {
		if err := plan.Profiles[i].ResolveInherited(profileMap); err != nil {
			return fmt.Errorf("invalid profile inheritance: %w", err)
		}
	}

	return nil
}

// checkCircularInheritance detects circular dependencies in profile inheritance
func (r *Registry) checkCircularInheritance(currentID string, inherits []string, profileMap map[string]types.ProfileConfig, visited map[string]bool) error {
	if visited[currentID] {
		return fmt.Errorf("circular inheritance detected at profile %s", currentID)
	}

	visited[currentID] = true
	defer delete(visited, currentID)

	for _, inheritedID := range inherits {
		inherited, exists := profileMap[inheritedID]
		if !exists {
			return fmt.Errorf("profile %s inherits from non-existent profile %s", currentID, inheritedID)
		}

		if err := r.checkCircularInheritance(inheritedID, inherited.Inherits, profileMap, visited); err != nil {
			return err
		}
	}

	return nil
}

// Checks returns all discovered checks in plan order
func (r *Registry) Checks() []types.CheckMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checks
}

// ChecksByPhase returns the checks for a specific phase
func (r *Registry) ChecksByPhase(phaseID string) []types.CheckMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var checks []types.CheckMetadata
	for _, check := range r.checks {
		if check.Phase == phaseID {
			checks = append(checks, check)
		}
	}
	return checks
}

// Phases returns the plan's phases in declaration order
func (r *Registry) Phases() []types.PhaseConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phases
}

// PhaseIDs returns the ids of every phase in plan order
func (r *Registry) PhaseIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.phases))
	for _, phase := range r.phases {
		ids = append(ids, phase.ID)
	}
	return ids
}

// ProfilePhases resolves a profile id into the phase ids it selects
func (r *Registry) ProfilePhases(profileID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, profile := range r.plan.Profiles {
		if profile.ID == profileID {
			return profile.Phases, nil
		}
	}
	return nil, fmt.Errorf("profile %q not found in plan", profileID)
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadConfig loads a phase plan from a file
func loadConfig(path string) (*types.PlanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var cfg types.PlanConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	return &cfg, nil
}

// discoverChecks converts the plan into check metadata
func (r *Registry) discoverChecks(plan *types.PlanConfig) ([]types.CheckMetadata, error) {
	var checks []types.CheckMetadata

	for i := range plan.Phases {
		phase := &plan.Phases[i]

		switch phase.EffectiveKind() {
		case types.PhaseKindGoTest:
			checks = append(checks, r.discoverPackageChecks(plan, phase)...)
		case types.PhaseKindScenario:
			checks = append(checks, r.discoverScenarioChecks(plan, phase)...)
		}
	}

	return checks, nil
}

func (r *Registry) discoverPackageChecks(plan *types.PlanConfig, phase *types.PhaseConfig) []types.CheckMetadata {
	var checks []types.CheckMetadata

	for _, cfg := range phase.Packages {
		timeout := r.resolveTimeout(plan, cfg.Timeout, phase)

		// A package entry without a function name runs every test in the package.
		if cfg.Name == "" {
			checks = append(checks, types.CheckMetadata{
				ID:      cfg.Package,
				Kind:    types.CheckKindGoTest,
				Phase:   phase.ID,
				Package: cfg.Package,
				RunAll:  true,
				Timeout: timeout,
			})
			continue
		}

		checks = append(checks, types.CheckMetadata{
			ID:       cfg.Name,
			Kind:     types.CheckKindGoTest,
			Phase:    phase.ID,
			FuncName: cfg.Name,
			Package:  cfg.Package,
			Timeout:  timeout,
		})
	}

	return checks
}

func (r *Registry) discoverScenarioChecks(plan *types.PlanConfig, phase *types.PhaseConfig) []types.CheckMetadata {
	var checks []types.CheckMetadata

	for i := range phase.Scenarios {
		scenario := phase.Scenarios[i]
		timeout := r.resolveTimeout(plan, scenario.Timeout, phase)

		checks = append(checks, types.CheckMetadata{
			ID:       scenario.Name,
			Kind:     types.CheckKindScenario,
			Phase:    phase.ID,
			Scenario: &scenario,
			Timeout:  timeout,
		})
	}

	return checks
}

func (r *Registry) resolveTimeout(plan *types.PlanConfig, explicit *types.Duration, phase *types.PhaseConfig) time.Duration {
	if explicit != nil {
		return explicit.Std()
	}
	if phase.Timeout != nil {
		return phase.Timeout.Std()
	}
	if d, ok := plan.Metadata.Timeouts[phase.ID]; ok {
		return d.Std()
	}
	return r.config.DefaultTimeout
}
