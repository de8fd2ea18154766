package runner

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/types"
)

func newTestRunner() *runner {
	return &runner{log: zap.NewNop()}
}

func TestParseTestEvent(t *testing.T) {
	line := []byte(`{"Time":"2026-08-29T10:00:00Z","Action":"pass","Package":"example.com/agent/core","Test":"TestParse","Elapsed":0.42}`)
	event, err := parseTestEvent(line)
	require.NoError(t, err)
	assert.Equal(t, ActionPass, event.Action)
	assert.Equal(t, "TestParse", event.Test)
	assert.Equal(t, 0.42, event.Elapsed)

	_, err = parseTestEvent([]byte("not json"))
	require.Error(t, err)
}

func TestParseTestOutput(t *testing.T) {
	metadata := types.CheckMetadata{
		ID:       "TestParse",
		Kind:     types.CheckKindGoTest,
		FuncName: "TestParse",
		Package:  "example.com/agent/core",
	}

	t.Run("passing test", func(t *testing.T) {
		output := strings.Join([]string{
			`{"Time":"2026-08-29T10:00:00Z","Action":"start","Package":"example.com/agent/core"}`,
			`{"Time":"2026-08-29T10:00:01Z","Action":"run","Test":"TestParse"}`,
			`{"Time":"2026-08-29T10:00:02Z","Action":"pass","Test":"TestParse","Elapsed":1.0}`,
		}, "\n")

		result := newTestRunner().parseTestOutput([]byte(output), metadata)
		assert.Equal(t, types.CheckStatusPass, result.Status)
		assert.NoError(t, result.Error)
	})

	t.Run("failing test collects output", func(t *testing.T) {
		output := strings.Join([]string{
			`{"Time":"2026-08-29T10:00:00Z","Action":"start","Package":"example.com/agent/core"}`,
			`{"Time":"2026-08-29T10:00:01Z","Action":"output","Test":"TestParse","Output":"    core_test.go:42: expected 200, got 400\n"}`,
			`{"Time":"2026-08-29T10:00:02Z","Action":"fail","Test":"TestParse","Elapsed":1.0}`,
		}, "\n")

		result := newTestRunner().parseTestOutput([]byte(output), metadata)
		assert.Equal(t, types.CheckStatusFail, result.Status)
		require.Error(t, result.Error)
		assert.Contains(t, result.Error.Error(), "expected 200, got 400")
	})

	t.Run("skipped test", func(t *testing.T) {
		output := strings.Join([]string{
			`{"Time":"2026-08-29T10:00:00Z","Action":"start","Package":"example.com/agent/core"}`,
			`{"Time":"2026-08-29T10:00:01Z","Action":"skip","Test":"TestParse","Elapsed":0.1}`,
		}, "\n")

		result := newTestRunner().parseTestOutput([]byte(output), metadata)
		assert.Equal(t, types.CheckStatusSkip, result.Status)
	})

	t.Run("package run produces subchecks", func(t *testing.T) {
		pkgMetadata := types.CheckMetadata{
			ID:      "example.com/agent/core",
			Kind:    types.CheckKindGoTest,
			Package: "example.com/agent/core",
			RunAll:  true,
		}
		output := strings.Join([]string{
			`{"Time":"2026-08-29T10:00:00Z","Action":"start","Package":"example.com/agent/core"}`,
			`{"Time":"2026-08-29T10:00:01Z","Action":"start","Test":"TestOne"}`,
			`{"Time":"2026-08-29T10:00:02Z","Action":"pass","Test":"TestOne","Elapsed":1.0}`,
			`{"Time":"2026-08-29T10:00:02Z","Action":"start","Test":"TestTwo"}`,
			`{"Time":"2026-08-29T10:00:03Z","Action":"output","Test":"TestTwo","Output":"boom\n"}`,
			`{"Time":"2026-08-29T10:00:03Z","Action":"fail","Test":"TestTwo","Elapsed":1.0}`,
		}, "\n")

		result := newTestRunner().parseTestOutput([]byte(output), pkgMetadata)
		require.Len(t, result.SubChecks, 2)
		assert.Equal(t, types.CheckStatusPass, result.SubChecks["TestOne"].Status)
		assert.Equal(t, types.CheckStatusFail, result.SubChecks["TestTwo"].Status)
		// A failing subcheck fails the whole package check
		assert.Equal(t, types.CheckStatusFail, result.Status)
		assert.Equal(t, time.Second, result.SubChecks["TestOne"].Duration)
	})

	t.Run("empty output fails", func(t *testing.T) {
		result := newTestRunner().parseTestOutput(nil, metadata)
		assert.Equal(t, types.CheckStatusFail, result.Status)
		require.Error(t, result.Error)
	})

	t.Run("garbage output fails", func(t *testing.T) {
		result := newTestRunner().parseTestOutput([]byte("plain text\nnot json\n"), metadata)
		assert.Equal(t, types.CheckStatusFail, result.Status)
		require.Error(t, result.Error)
		assert.Contains(t, result.Error.Error(), "no valid JSON output")
	})
}

func TestParseTestListOutput(t *testing.T) {
	output := []byte("TestOne\nTestTwo\nok  \texample.com/agent/core\t0.335s\n")
	assert.Equal(t, []string{"TestOne", "TestTwo"}, parseTestListOutput(output))
}

func TestIsValidTestName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"TestSomething", true},
		{"", false},
		{"ok", false},
		{"ok example.com/agent/core 0.335s", false},
		{"?   example.com/agent/empty [no test files]", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isValidTestName(tt.name), tt.name)
	}
}
