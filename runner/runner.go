// Package runner executes the phases of a harness run, serially and in plan
// order. A phase either shells out to `go test -json` for the agent's test
// packages or runs the agent binary end-to-end under a scenario environment.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/logging"
	"github.com/adaptive-agent/api-harness/metrics"
	"github.com/adaptive-agent/api-harness/registry"
	"github.com/adaptive-agent/api-harness/types"
)

// PhaseResult captures aggregated results for a phase
type PhaseResult struct {
	ID          string
	Description string
	Kind        types.PhaseKind
	Checks      map[string]*types.CheckResult
	CheckOrder  []string
	Status      types.CheckStatus
	Duration    time.Duration
	Stats       ResultStats
}

// RunResult captures the complete harness run results
type RunResult struct {
	Phases     map[string]*PhaseResult
	PhaseOrder []string
	Status     types.CheckStatus
	Duration   time.Duration
	Stats      ResultStats
	RunID      string
}

// ResultStats tracks check statistics at each level
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// PhaseRunner defines the interface for running harness phases
type PhaseRunner interface {
	RunAllPhases(ctx context.Context) (*RunResult, error)
	RunCheck(ctx context.Context, metadata types.CheckMetadata) (*types.CheckResult, error)
}

// PhaseRunnerWithFileLogger extends the PhaseRunner interface with a method
// to set the file logger after creation
type PhaseRunnerWithFileLogger interface {
	PhaseRunner
	SetFileLogger(logger *logging.FileLogger)
}

// runner struct implements the PhaseRunner interface
type runner struct {
	registry   *registry.Registry
	phases     []types.PhaseConfig
	workDir    string // Directory for running the agent's test packages
	log        *zap.Logger
	runID      string
	goBinary   string
	target     string // Path to the agent binary for scenarios
	mockURL    string // Base URL of the mock API, injected into every check
	allowSkips bool
	fileLogger *logging.FileLogger
	tracer     trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry   *registry.Registry
	Phases     []string // Phase ids to run; empty means the whole plan
	WorkDir    string
	Log        *zap.Logger
	GoBinary   string
	Target     string
	MockURL    string
	AllowSkips bool
	FileLogger *logging.FileLogger
}

// NewPhaseRunner creates a new phase runner instance
func NewPhaseRunner(cfg Config) (PhaseRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = "go"
	}

	phases, err := selectPhases(cfg.Registry.Phases(), cfg.Phases)
	if err != nil {
		return nil, err
	}

	cfg.Log.Debug("NewPhaseRunner()",
		zap.Strings("phases", cfg.Phases),
		zap.String("workDir", cfg.WorkDir),
		zap.String("goBinary", cfg.GoBinary),
		zap.String("target", cfg.Target),
		zap.Bool("allowSkips", cfg.AllowSkips))

	return &runner{
		registry:   cfg.Registry,
		phases:     phases,
		workDir:    cfg.WorkDir,
		log:        cfg.Log,
		goBinary:   cfg.GoBinary,
		target:     cfg.Target,
		mockURL:    cfg.MockURL,
		allowSkips: cfg.AllowSkips,
		fileLogger: cfg.FileLogger,
		tracer:     otel.Tracer("phase runner"),
	}, nil
}

// selectPhases narrows the plan to the requested phase ids, preserving plan order
func selectPhases(plan []types.PhaseConfig, requested []string) ([]types.PhaseConfig, error) {
	if len(requested) == 0 {
		return plan, nil
	}

	wanted := make(map[string]bool, len(requested))
	for _, id := range requested {
		wanted[id] = true
	}

	var phases []types.PhaseConfig
	for _, phase := range plan {
		if wanted[phase.ID] {
			phases = append(phases, phase)
			delete(wanted, phase.ID)
		}
	}

	if len(wanted) > 0 {
		var missing []string
		for id := range wanted {
			missing = append(missing, id)
		}
		return nil, fmt.Errorf("unknown phase(s): %s", strings.Join(missing, ", "))
	}
	return phases, nil
}

// RunAllPhases implements the PhaseRunner interface
func (r *runner) RunAllPhases(ctx context.Context) (*RunResult, error) {
	// Use fileLogger's runID if available, otherwise generate new
	if r.fileLogger != nil {
		r.runID = r.fileLogger.GetRunID()
	} else {
		r.runID = uuid.New().String()
	}

	defer func() {
		r.runID = ""
	}()
	start := time.Now()
	r.log.Debug("Running all phases", zap.String("run_id", r.runID))

	result := &RunResult{
		Phases: make(map[string]*PhaseResult),
		Stats:  ResultStats{StartTime: start},
	}

	// Every phase runs, whatever earlier phases did. Only a runner-level
	// malfunction (not a check failure) aborts the sequence.
	for i := range r.phases {
		if err := r.processPhase(ctx, &r.phases[i], result); err != nil {
			return nil, fmt.Errorf("processing phase %s: %w", r.phases[i].ID, err)
		}
	}

	result.Duration = time.Since(start)
	result.Status = determineRunStatus(result)
	result.Stats.EndTime = time.Now()
	result.RunID = r.runID
	return result, nil
}

// processPhase handles the execution of a single phase and its checks
func (r *runner) processPhase(ctx context.Context, phase *types.PhaseConfig, result *RunResult) error {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("phase %s", phase.ID))
	defer span.End()

	phaseStart := time.Now()
	phaseResult := &PhaseResult{
		ID:          phase.ID,
		Description: phase.Description,
		Kind:        phase.EffectiveKind(),
		Checks:      make(map[string]*types.CheckResult),
		Stats:       ResultStats{StartTime: phaseStart},
	}
	result.Phases[phase.ID] = phaseResult
	result.PhaseOrder = append(result.PhaseOrder, phase.ID)

	for _, check := range r.registry.ChecksByPhase(phase.ID) {
		checkResult, err := r.RunCheck(ctx, check)
		if err != nil {
			return fmt.Errorf("running check %s: %w", check.ID, err)
		}

		key := r.checkKey(check)
		phaseResult.Checks[key] = checkResult
		phaseResult.CheckOrder = append(phaseResult.CheckOrder, key)

		result.updateStats(phaseResult, checkResult)
	}

	phaseResult.Duration = time.Since(phaseStart)
	phaseResult.Status = determinePhaseStatus(phaseResult)
	phaseResult.Stats.EndTime = time.Now()

	return nil
}

// checkKey returns the appropriate key to use for a check in result maps
func (r *runner) checkKey(check types.CheckMetadata) string {
	if check.RunAll {
		// For package checks that use RunAll, use the package as the key
		return check.Package
	}
	return check.GetName()
}

// RunCheck implements the PhaseRunner interface
func (r *runner) RunCheck(ctx context.Context, metadata types.CheckMetadata) (*types.CheckResult, error) {
	// Use defer and recover to catch panics and convert them to errors
	var result *types.CheckResult
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			errMsg := fmt.Sprintf("runtime error: %v", rec)
			r.log.Error("Panic in RunCheck",
				zap.String("error", errMsg),
				zap.String("check", metadata.GetName()))

			if result == nil {
				result = &types.CheckResult{
					Metadata: metadata,
					Status:   types.CheckStatusFail,
					Error:    fmt.Errorf("%s", errMsg),
				}
			} else {
				result.Status = types.CheckStatusFail
				result.Error = fmt.Errorf("%s", errMsg)
			}

			err = fmt.Errorf("%s", errMsg)
		}
	}()

	r.log.Info("Running check", zap.String("check", metadata.ID), zap.String("phase", metadata.Phase))
	start := time.Now()
	switch {
	case metadata.Kind == types.CheckKindScenario:
		result, err = r.runScenario(ctx, metadata)
	case metadata.RunAll:
		result, err = r.runAllTestsInPackage(ctx, metadata)
	default:
		result, err = r.runSingleTest(ctx, metadata)
	}

	var status types.CheckStatus
	if result != nil {
		result.Duration = time.Since(start)
		status = result.Status
	} else {
		status = types.CheckStatusError
	}
	metrics.RecordCheck(r.runID, metadata.Phase, metadata.Kind.String(), metadata.ID, status)

	if r.fileLogger != nil && result != nil {
		if logErr := r.fileLogger.LogCheckResult(result); logErr != nil {
			r.log.Error("Failed to log check result", zap.Error(logErr))
		}
	}

	return result, err
}

// SetFileLogger sets the file logger for the runner
func (r *runner) SetFileLogger(logger *logging.FileLogger) {
	r.fileLogger = logger
}

// updateStats updates statistics at all levels
func (r *RunResult) updateStats(phase *PhaseResult, check *types.CheckResult) {
	phase.Stats.Total++
	switch check.Status {
	case types.CheckStatusPass:
		phase.Stats.Passed++
	case types.CheckStatusFail:
		phase.Stats.Failed++
	case types.CheckStatusSkip:
		phase.Stats.Skipped++
	}
	phase.Duration += check.Duration

	r.Stats.Total++
	switch check.Status {
	case types.CheckStatusPass:
		r.Stats.Passed++
	case types.CheckStatusFail:
		r.Stats.Failed++
	case types.CheckStatusSkip:
		r.Stats.Skipped++
	}
	r.Duration += check.Duration

	for _, subCheck := range check.SubChecks {
		r.Stats.Total++
		phase.Stats.Total++
		switch subCheck.Status {
		case types.CheckStatusPass:
			r.Stats.Passed++
			phase.Stats.Passed++
		case types.CheckStatusFail:
			r.Stats.Failed++
			phase.Stats.Failed++
		case types.CheckStatusSkip:
			r.Stats.Skipped++
			phase.Stats.Skipped++
		}
		r.Duration += subCheck.Duration
		phase.Duration += subCheck.Duration
	}
}

// determinePhaseStatus determines the overall status of a phase based on its checks
func determinePhaseStatus(phase *PhaseResult) types.CheckStatus {
	if len(phase.Checks) == 0 {
		return types.CheckStatusSkip
	}

	allSkipped := true
	anyFailed := false

	for _, check := range phase.Checks {
		if check.Status != types.CheckStatusSkip {
			allSkipped = false
		}
		if check.Status == types.CheckStatusFail {
			anyFailed = true
		}
	}

	return determineStatusFromFlags(allSkipped, anyFailed)
}

// determineRunStatus determines the overall status of the harness run
func determineRunStatus(result *RunResult) types.CheckStatus {
	if len(result.Phases) == 0 {
		return types.CheckStatusSkip
	}

	allSkipped := true
	anyFailed := false

	for _, phase := range result.Phases {
		if phase.Status != types.CheckStatusSkip {
			allSkipped = false
		}
		if phase.Status == types.CheckStatusFail {
			anyFailed = true
		}
	}

	return determineStatusFromFlags(allSkipped, anyFailed)
}

// determineStatusFromFlags is a helper that returns a status based on common flag logic
func determineStatusFromFlags(allSkipped, anyFailed bool) types.CheckStatus {
	if allSkipped {
		return types.CheckStatusSkip
	}
	if anyFailed {
		return types.CheckStatusFail
	}
	return types.CheckStatusPass
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// String returns a formatted string representation of the run results
func (r *RunResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Harness Run Results (%s):\n", formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Skipped: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped))

	for _, phaseID := range r.PhaseOrder {
		phase := r.Phases[phaseID]
		b.WriteString(fmt.Sprintf("\nPhase: %s (%s)\n", phaseID, formatDuration(phase.Duration)))
		b.WriteString(fmt.Sprintf("├── Status: %s\n", phase.Status))
		b.WriteString(fmt.Sprintf("├── Checks: %d passed, %d failed, %d skipped\n",
			phase.Stats.Passed, phase.Stats.Failed, phase.Stats.Skipped))

		for _, checkName := range phase.CheckOrder {
			check := phase.Checks[checkName]
			displayName := types.GetCheckDisplayName(checkName, check.Metadata)

			b.WriteString(fmt.Sprintf("├── Check: %s (%s) [status=%s]\n",
				displayName, formatDuration(check.Duration), check.Status))
			if check.Error != nil {
				b.WriteString(fmt.Sprintf("│       └── Error: %s\n", check.Error.Error()))
			}

			if len(check.SubChecks) > 0 {
				i := 0
				for subCheckName, subCheck := range check.SubChecks {
					prefix := "│       ├──"
					if i == len(check.SubChecks)-1 {
						prefix = "│       └──"
					}
					b.WriteString(fmt.Sprintf("│       %s Check: %s (%s) [status=%s]\n",
						prefix, subCheckName, formatDuration(subCheck.Duration), subCheck.Status))
					if subCheck.Error != nil {
						b.WriteString(fmt.Sprintf("│       │       └── Error: %s\n", subCheck.Error.Error()))
					}
					i++
				}
			}
		}
	}
	return b.String()
}

// Checks returns the metadata of every check in the run result
func (r *RunResult) Checks() []types.CheckMetadata {
	var checks []types.CheckMetadata
	for _, phase := range r.Phases {
		for _, check := range phase.Checks {
			checks = append(checks, check.Metadata)
		}
	}
	return checks
}

// Make sure the runner type implements both interfaces
var _ PhaseRunner = &runner{}
var _ PhaseRunnerWithFileLogger = &runner{}
