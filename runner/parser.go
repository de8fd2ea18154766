package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/types"
)

// Go test2json (TestEvent) action constants for JSON test output
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart  = "start"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// TestEvent represents a single event from the go test JSON output
type TestEvent struct {
	Time    time.Time // Time the event occurred
	Action  string    // The action taken (run, pause, cont, pass, fail, skip, output)
	Package string    // The package being tested
	Test    string    // The test function name (may be empty for package events)
	Output  string    // Output text (may be empty)
	Elapsed float64   // Elapsed time in seconds for the specific action
}

// parseTestEvent parses a single line of test output into a TestEvent
func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	err := json.Unmarshal(line, &event)
	return event, err
}

// parseTestOutput parses the JSON test output and extracts check result information
func (r *runner) parseTestOutput(output []byte, metadata types.CheckMetadata) *types.CheckResult {
	if len(output) == 0 {
		r.log.Debug("Empty test output",
			zap.String("check", metadata.FuncName),
			zap.String("package", metadata.Package))
		return newFailedCheckResult(metadata, fmt.Errorf("empty test output"))
	}

	result := &types.CheckResult{
		Metadata:  metadata,
		Status:    types.CheckStatusPass, // Default to pass unless determined otherwise
		SubChecks: make(map[string]*types.CheckResult),
	}

	var testStart, testEnd time.Time
	var errorMsg strings.Builder
	var hasSkip bool
	var hasAnyValidEvent bool

	subCheckStartTimes := make(map[string]time.Time)
	lines := bytes.Split(output, []byte("\n"))

	for _, line := range lines {
		if len(line) == 0 {
			continue
		}

		event, err := parseTestEvent(line)
		if err != nil {
			r.log.Debug("Failed to parse test JSON output line",
				zap.Error(err), zap.ByteString("line", line))
			continue
		}

		hasAnyValidEvent = true

		if isMainTestEvent(event, metadata.FuncName) {
			processMainTestEvent(event, result, &testStart, &testEnd, &errorMsg, &hasSkip)
		} else {
			processSubCheckEvent(event, result, subCheckStartTimes, &hasSkip)
		}
	}

	if !hasAnyValidEvent {
		return newFailedCheckResult(metadata, fmt.Errorf("no valid JSON output from test"))
	}

	result.Duration = calculateTestDuration(testStart, testEnd)

	if errorMsg.Len() > 0 && result.Status == types.CheckStatusFail {
		result.Error = fmt.Errorf("%s", errorMsg.String())
	}

	// Final check for skipped tests
	if hasSkip && result.Status != types.CheckStatusFail && len(result.SubChecks) == 0 {
		result.Status = types.CheckStatusSkip
	}

	r.log.Debug("Parsed test output",
		zap.String("check", metadata.FuncName),
		zap.String("package", metadata.Package),
		zap.String("status", string(result.Status)),
		zap.Int("subchecks", len(result.SubChecks)),
		zap.Bool("hasError", result.Error != nil))

	return result
}

// isMainTestEvent checks if the event belongs to the main test or package
func isMainTestEvent(event TestEvent, mainTestName string) bool {
	return event.Test == "" || event.Test == mainTestName
}

// processMainTestEvent handles events for the main test
func processMainTestEvent(event TestEvent, result *types.CheckResult, testStart, testEnd *time.Time,
	errorMsg *strings.Builder, hasSkip *bool) {
	switch event.Action {
	case ActionStart:
		*testStart = event.Time
	case ActionPass:
		*testEnd = event.Time
		result.Status = types.CheckStatusPass
	case ActionFail:
		*testEnd = event.Time
		result.Status = types.CheckStatusFail
	case ActionSkip:
		*testEnd = event.Time
		result.Status = types.CheckStatusSkip
		*hasSkip = true
	case ActionOutput:
		if event.Output != "" {
			errorMsg.WriteString(event.Output)
		}
	}
}

// processSubCheckEvent handles events for subtests
func processSubCheckEvent(event TestEvent, result *types.CheckResult,
	subCheckStartTimes map[string]time.Time, hasSkip *bool) {
	subCheck, exists := result.SubChecks[event.Test]
	if !exists {
		subCheck = &types.CheckResult{
			Metadata: types.CheckMetadata{
				Kind:     types.CheckKindGoTest,
				Phase:    result.Metadata.Phase,
				FuncName: event.Test,
				Package:  result.Metadata.Package,
			},
			Status: types.CheckStatusPass, // Default to pass
		}
		result.SubChecks[event.Test] = subCheck
	}

	switch event.Action {
	case ActionStart:
		subCheckStartTimes[event.Test] = event.Time
	case ActionPass:
		subCheck.Status = types.CheckStatusPass
		calculateSubCheckDuration(subCheck, event, subCheckStartTimes)
	case ActionFail:
		subCheck.Status = types.CheckStatusFail
		// A failing subtest means the main test fails too
		result.Status = types.CheckStatusFail
		calculateSubCheckDuration(subCheck, event, subCheckStartTimes)
	case ActionSkip:
		subCheck.Status = types.CheckStatusSkip
		*hasSkip = true
		calculateSubCheckDuration(subCheck, event, subCheckStartTimes)
	case ActionOutput:
		updateSubCheckError(subCheck, event.Output)
	}
}

// calculateSubCheckDuration sets the duration for a subtest based on the
// tracked start time, falling back to the event's elapsed field
func calculateSubCheckDuration(subCheck *types.CheckResult, event TestEvent, subCheckStartTimes map[string]time.Time) {
	startTime, hasStartTime := subCheckStartTimes[event.Test]
	if hasStartTime {
		subCheck.Duration = event.Time.Sub(startTime)
	} else if event.Elapsed > 0 {
		subCheck.Duration = time.Duration(event.Elapsed * float64(time.Second))
	}
}

// updateSubCheckError accumulates output lines into a subtest's error
func updateSubCheckError(subCheck *types.CheckResult, output string) {
	if output == "" {
		return
	}

	if subCheck.Error == nil {
		subCheck.Error = fmt.Errorf("%s", output)
	} else {
		subCheck.Error = fmt.Errorf("%s\n%s", subCheck.Error.Error(), output)
	}
}

// calculateTestDuration calculates the duration of a test
func calculateTestDuration(start, end time.Time) time.Duration {
	if !start.IsZero() && !end.IsZero() {
		return end.Sub(start)
	} else if !start.IsZero() {
		// If we have a start but no end, use time since start
		return time.Since(start)
	}
	return 0
}

// newFailedCheckResult creates a new failed check result
func newFailedCheckResult(metadata types.CheckMetadata, err error) *types.CheckResult {
	return &types.CheckResult{
		Metadata:  metadata,
		Status:    types.CheckStatusFail,
		Error:     err,
		SubChecks: make(map[string]*types.CheckResult),
	}
}

// parseTestListOutput extracts valid test names from go test -list output
func parseTestListOutput(output []byte) []string {
	var testNames []string

	for _, line := range bytes.Split(output, []byte("\n")) {
		testName := string(bytes.TrimSpace(line))
		if isValidTestName(testName) {
			testNames = append(testNames, testName)
		}
	}

	return testNames
}

// isValidTestName returns true if the name represents a valid test
func isValidTestName(name string) bool {
	if name == "" || name == "ok" || strings.HasPrefix(name, "?") {
		return false
	}

	// Filter out the trailer line with the package name and timing info,
	// e.g. "ok github.com/adaptive-agent/agent/core 0.335s"
	if strings.HasPrefix(name, "ok ") && strings.Contains(name, ".") && strings.HasSuffix(name, "s") {
		return false
	}

	return true
}
