package testlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkdir(t *testing.T) string {
	t.Helper()
	workDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "go.mod"),
		[]byte("module example.com/agent\n\ngo 1.24\n"), 0644))

	pkgDir := filepath.Join(workDir, "core")
	require.NoError(t, os.MkdirAll(pkgDir, 0755))

	testFile := `package core

import "testing"

func TestMain(m *testing.M) {
	m.Run()
}

func TestParseSpec(t *testing.T) {}

func TestRetryBudget(t *testing.T) {}

func helperNotATest(t *testing.T) {}
`
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "core_test.go"), []byte(testFile), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "core.go"),
		[]byte("package core\n\nfunc Parse() {}\n"), 0644))

	return workDir
}

func TestTestFunctions(t *testing.T) {
	workDir := writeWorkdir(t)

	t.Run("relative package path", func(t *testing.T) {
		funcs, err := TestFunctions("./core", workDir)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"TestParseSpec", "TestRetryBudget"}, funcs,
			"TestMain and helpers are excluded")
	})

	t.Run("module-qualified package path", func(t *testing.T) {
		funcs, err := TestFunctions("example.com/agent/core", workDir)
		require.NoError(t, err)
		assert.Len(t, funcs, 2)
	})

	t.Run("package outside the module", func(t *testing.T) {
		_, err := TestFunctions("other.example.com/pkg", workDir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in module")
	})

	t.Run("nonexistent package directory", func(t *testing.T) {
		_, err := TestFunctions("./missing", workDir)
		require.Error(t, err)
	})
}

func TestPackageDir(t *testing.T) {
	workDir := writeWorkdir(t)

	rel, err := packageDir("./core", workDir)
	require.NoError(t, err)
	assert.Equal(t, "core", rel)

	rel, err = packageDir("example.com/agent", workDir)
	require.NoError(t, err)
	assert.Equal(t, ".", rel)
}
