package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	plan := `
phases:
  - id: unit
    packages:
      - package: ./tests/unit
  - id: stress
    packages:
      - package: ./tests/stress
profiles:
  - id: smoke
    phases: [unit]
`
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(plan), 0644))

	reg, err := registry.NewRegistry(registry.Config{PlanFile: planPath})
	require.NoError(t, err)
	return reg
}

func TestResolvePhaseSelection(t *testing.T) {
	reg := testRegistry(t)

	t.Run("no selection runs the whole plan", func(t *testing.T) {
		phases, err := resolvePhaseSelection(reg, &Config{})
		require.NoError(t, err)
		assert.Nil(t, phases)
	})

	t.Run("single phase", func(t *testing.T) {
		phases, err := resolvePhaseSelection(reg, &Config{Phase: "stress"})
		require.NoError(t, err)
		assert.Equal(t, []string{"stress"}, phases)
	})

	t.Run("profile selection", func(t *testing.T) {
		phases, err := resolvePhaseSelection(reg, &Config{Profile: "smoke"})
		require.NoError(t, err)
		assert.Equal(t, []string{"unit"}, phases)
	})

	t.Run("unknown profile", func(t *testing.T) {
		_, err := resolvePhaseSelection(reg, &Config{Profile: "ghost"})
		require.Error(t, err)
	})
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "v0", func(error) {})
	require.Error(t, err)
}

func TestNewHarness(t *testing.T) {
	plan := `
phases:
  - id: unit
    packages:
      - package: ./tests/unit
`
	tmpDir := t.TempDir()
	planPath := filepath.Join(tmpDir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(plan), 0644))

	cfg := &Config{
		PlanFile:   planPath,
		WorkDir:    tmpDir,
		MockListen: "127.0.0.1:5000",
		LogDir:     filepath.Join(tmpDir, "logs"),
		Log:        zap.NewNop(),
	}

	h, err := New(context.Background(), cfg, "v0", func(error) {})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "http://127.0.0.1:5000", h.mockURL)
	assert.NotNil(t, h.mock, "a mock supervisor is created when no external URL is set")
	assert.True(t, h.Stopped(), "not started yet")
}

func TestNewHarnessExternalMock(t *testing.T) {
	plan := `
phases:
  - id: unit
    packages:
      - package: ./tests/unit
`
	tmpDir := t.TempDir()
	planPath := filepath.Join(tmpDir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(plan), 0644))

	cfg := &Config{
		PlanFile: planPath,
		WorkDir:  tmpDir,
		MockURL:  "http://mock.internal:5000",
		LogDir:   filepath.Join(tmpDir, "logs"),
		Log:      zap.NewNop(),
	}

	h, err := New(context.Background(), cfg, "v0", func(error) {})
	require.NoError(t, err)
	assert.Equal(t, "http://mock.internal:5000", h.mockURL)
	assert.Nil(t, h.mock, "no supervisor for an externally managed mock")
}
