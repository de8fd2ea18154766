package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptive-agent/api-harness/types"
)

func TestSelectPhases(t *testing.T) {
	plan := []types.PhaseConfig{
		{ID: "unit"},
		{ID: "integration"},
		{ID: "e2e"},
	}

	t.Run("empty selection keeps the whole plan", func(t *testing.T) {
		phases, err := selectPhases(plan, nil)
		require.NoError(t, err)
		assert.Len(t, phases, 3)
	})

	t.Run("selection preserves plan order", func(t *testing.T) {
		phases, err := selectPhases(plan, []string{"e2e", "unit"})
		require.NoError(t, err)
		require.Len(t, phases, 2)
		assert.Equal(t, "unit", phases[0].ID)
		assert.Equal(t, "e2e", phases[1].ID)
	})

	t.Run("unknown phase is an error", func(t *testing.T) {
		_, err := selectPhases(plan, []string{"unit", "nonexistent"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonexistent")
	})
}

func TestNewPhaseRunnerValidation(t *testing.T) {
	_, err := NewPhaseRunner(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry is required")
}

func TestDetermineStatusFromFlags(t *testing.T) {
	assert.Equal(t, types.CheckStatusSkip, determineStatusFromFlags(true, false))
	assert.Equal(t, types.CheckStatusFail, determineStatusFromFlags(false, true))
	assert.Equal(t, types.CheckStatusPass, determineStatusFromFlags(false, false))
}

func TestDeterminePhaseStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]*types.CheckResult
		want   types.CheckStatus
	}{
		{
			name:   "no checks means skip",
			checks: map[string]*types.CheckResult{},
			want:   types.CheckStatusSkip,
		},
		{
			name: "all pass",
			checks: map[string]*types.CheckResult{
				"a": {Status: types.CheckStatusPass},
				"b": {Status: types.CheckStatusPass},
			},
			want: types.CheckStatusPass,
		},
		{
			name: "one failure fails the phase",
			checks: map[string]*types.CheckResult{
				"a": {Status: types.CheckStatusPass},
				"b": {Status: types.CheckStatusFail},
			},
			want: types.CheckStatusFail,
		},
		{
			name: "all skipped",
			checks: map[string]*types.CheckResult{
				"a": {Status: types.CheckStatusSkip},
			},
			want: types.CheckStatusSkip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase := &PhaseResult{Checks: tt.checks}
			assert.Equal(t, tt.want, determinePhaseStatus(phase))
		})
	}
}

func TestDetermineRunStatus(t *testing.T) {
	result := &RunResult{Phases: map[string]*PhaseResult{
		"unit": {Status: types.CheckStatusPass},
		"e2e":  {Status: types.CheckStatusFail},
	}}
	assert.Equal(t, types.CheckStatusFail, determineRunStatus(result))

	result = &RunResult{Phases: map[string]*PhaseResult{}}
	assert.Equal(t, types.CheckStatusSkip, determineRunStatus(result))
}

func TestUpdateStats(t *testing.T) {
	run := &RunResult{Phases: make(map[string]*PhaseResult)}
	phase := &PhaseResult{Checks: make(map[string]*types.CheckResult)}

	run.updateStats(phase, &types.CheckResult{
		Status:   types.CheckStatusPass,
		Duration: time.Second,
	})
	run.updateStats(phase, &types.CheckResult{
		Status:   types.CheckStatusFail,
		Duration: 2 * time.Second,
		SubChecks: map[string]*types.CheckResult{
			"TestOne": {Status: types.CheckStatusPass, Duration: time.Second},
			"TestTwo": {Status: types.CheckStatusFail, Duration: time.Second},
		},
	})

	assert.Equal(t, 4, run.Stats.Total, "subchecks count toward totals")
	assert.Equal(t, 2, run.Stats.Passed)
	assert.Equal(t, 2, run.Stats.Failed)
	assert.Equal(t, run.Stats.Total, phase.Stats.Total)
	assert.Equal(t, 5*time.Second, run.Duration)
}

func TestRunResultString(t *testing.T) {
	result := &RunResult{
		Phases: map[string]*PhaseResult{
			"unit": {
				ID:         "unit",
				Status:     types.CheckStatusFail,
				CheckOrder: []string{"TestParse"},
				Checks: map[string]*types.CheckResult{
					"TestParse": {
						Metadata: types.CheckMetadata{FuncName: "TestParse"},
						Status:   types.CheckStatusFail,
					},
				},
				Stats: ResultStats{Total: 1, Failed: 1},
			},
		},
		PhaseOrder: []string{"unit"},
		Status:     types.CheckStatusFail,
		Stats:      ResultStats{Total: 1, Failed: 1},
	}

	s := result.String()
	assert.Contains(t, s, "Phase: unit")
	assert.Contains(t, s, "TestParse")
	assert.Contains(t, s, "Total: 1, Passed: 0, Failed: 1, Skipped: 0")
}

func TestCheckKey(t *testing.T) {
	r := newTestRunner()
	assert.Equal(t, "./tests/unit", r.checkKey(types.CheckMetadata{Package: "./tests/unit", RunAll: true}))
	assert.Equal(t, "TestParse", r.checkKey(types.CheckMetadata{FuncName: "TestParse", Package: "./tests/unit"}))
}
