package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/testlist"
	"github.com/adaptive-agent/api-harness/types"
)

// MockURLEnvVar names the environment variable through which checks and
// scenarios find the mock API server.
const MockURLEnvVar = "MOCK_API_URL"

// runAllTestsInPackage discovers and runs all tests in a package
func (r *runner) runAllTestsInPackage(ctx context.Context, metadata types.CheckMetadata) (*types.CheckResult, error) {
	testNames, err := r.listTestsInPackage(metadata.Package)
	if err != nil {
		return nil, fmt.Errorf("listing tests in package %s: %w", metadata.Package, err)
	}

	r.log.Debug("Found tests in package",
		zap.String("package", metadata.Package),
		zap.Int("count", len(testNames)),
		zap.String("tests", strings.Join(testNames, ", ")))

	return r.runTestList(ctx, metadata, testNames)
}

// listTestsInPackage returns all test names in a package. `go test -list` is
// authoritative; static discovery through the testlist package is the fallback
// when the toolchain invocation fails.
func (r *runner) listTestsInPackage(pkg string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listCmd := r.testCommand(ctx, r.goBinary, "test", pkg, "-list", "^Test")

	var listOut, listOutErr bytes.Buffer
	listCmd.Stdout = &listOut
	listCmd.Stderr = &listOutErr

	r.log.Debug("Listing tests in package",
		zap.String("package", pkg),
		zap.String("command", listCmd.String()))

	if err := listCmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("listing tests timed out after 30s")
		}

		names, staticErr := testlist.TestFunctions(pkg, r.workDir)
		if staticErr != nil {
			return nil, fmt.Errorf("command error: %w\nstderr: %s\nstatic discovery: %v",
				err, listOutErr.String(), staticErr)
		}
		r.log.Warn("go test -list failed, using static test discovery",
			zap.String("package", pkg), zap.Error(err))
		return names, nil
	}

	return parseTestListOutput(listOut.Bytes()), nil
}

// runTestList runs a list of tests and aggregates their results
func (r *runner) runTestList(ctx context.Context, metadata types.CheckMetadata, testNames []string) (*types.CheckResult, error) {
	if len(testNames) == 0 {
		r.log.Warn("No tests found to run in package", zap.String("package", metadata.Package))
		return &types.CheckResult{
			Metadata:  metadata,
			Status:    types.CheckStatusSkip,
			Duration:  0,
			SubChecks: make(map[string]*types.CheckResult),
		}, nil
	}

	var result types.CheckStatus = types.CheckStatusPass
	var testErrors []error
	var totalDuration time.Duration
	testResults := make(map[string]*types.CheckResult)
	var failedTestsStdout strings.Builder

	for _, testName := range testNames {
		testMetadata := metadata
		testMetadata.RunAll = false
		testMetadata.FuncName = testName

		testResult, err := r.runSingleTest(ctx, testMetadata)
		if err != nil {
			return nil, fmt.Errorf("running test %s: %w", testName, err)
		}

		testResults[testName] = testResult
		totalDuration += testResult.Duration

		if testResult.Status == types.CheckStatusFail {
			result = types.CheckStatusFail
			if testResult.Error != nil {
				testErrors = append(testErrors, fmt.Errorf("%s: %w", testName, testResult.Error))
			}

			if testResult.Stdout != "" {
				failedTestsStdout.WriteString(fmt.Sprintf("\n--- Test: %s ---\n", testName))
				failedTestsStdout.WriteString(testResult.Stdout)
			}
		}
	}

	failedStdout := failedTestsStdout.String()
	if result == types.CheckStatusFail && failedStdout != "" {
		r.log.Debug("Package check failed",
			zap.String("package", metadata.Package),
			zap.String("stdout_from_failed_tests", failedStdout))
	}

	return &types.CheckResult{
		Metadata:  metadata,
		Status:    result,
		Error:     errors.Join(testErrors...),
		Duration:  totalDuration,
		SubChecks: testResults,
		Stdout:    failedStdout,
	}, nil
}

// runSingleTest runs a specific test function
func (r *runner) runSingleTest(ctx context.Context, metadata types.CheckMetadata) (*types.CheckResult, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("check %s", metadata.FuncName))
	defer span.End()

	if metadata.Timeout != 0 {
		var cancel func()
		// The parent timeout is redundant with go test's own -timeout; the
		// extra 200ms lets the child report its timeout before the parent.
		ctx, cancel = context.WithTimeout(ctx, metadata.Timeout+200*time.Millisecond)
		defer cancel()
	}

	args := r.buildTestArgs(metadata)
	cmd := r.testCommand(ctx, r.goBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Info("Running test", zap.String("test", metadata.FuncName))
	r.log.Debug("Running test command",
		zap.String("dir", cmd.Dir),
		zap.String("package", metadata.Package),
		zap.String("test", metadata.FuncName),
		zap.String("command", cmd.String()),
		zap.Duration("timeout", metadata.Timeout))

	err := cmd.Run()

	// Check for timeout first
	if ctx.Err() == context.DeadlineExceeded {
		return &types.CheckResult{
			Metadata: metadata,
			Status:   types.CheckStatusFail,
			Error:    fmt.Errorf("test timed out after %v", metadata.Timeout),
			TimedOut: true,
		}, nil
	}

	parsedResult := r.parseTestOutput(stdout.Bytes(), metadata)

	if parsedResult == nil {
		parsedResult = &types.CheckResult{
			Metadata: metadata,
			Status:   types.CheckStatusFail,
			Error:    fmt.Errorf("failed to parse test output"),
		}
	}

	// Capture stdout in the check result when failing or skipped
	if (parsedResult.Status == types.CheckStatusFail || parsedResult.Status == types.CheckStatusSkip) && stdout.Len() > 0 {
		parsedResult.Stdout = stdout.String()
	}

	// Add any stderr output to the error
	if err != nil && stderr.Len() > 0 {
		if parsedResult.Error != nil {
			parsedResult.Error = fmt.Errorf("%w\nstderr: %s", parsedResult.Error, stderr.String())
		} else {
			parsedResult.Error = fmt.Errorf("stderr: %s", stderr.String())
		}
	}

	return parsedResult, nil
}

// buildTestArgs constructs the command line arguments for running a test
func (r *runner) buildTestArgs(metadata types.CheckMetadata) []string {
	args := []string{"test"}

	if metadata.Package != "" {
		args = append(args, metadata.Package)
	} else {
		args = append(args, "./...")
	}

	if !metadata.RunAll && metadata.FuncName != "" {
		args = append(args, "-run", fmt.Sprintf("^%s$", metadata.FuncName))
	}

	// Always disable caching
	args = append(args, "-count", "1")

	if metadata.Timeout != 0 {
		args = append(args, "-timeout", metadata.Timeout.String())
	}

	args = append(args, "-v")

	// Always use JSON output for more reliable parsing
	args = append(args, "-json")

	return args
}

// testCommand builds a command rooted in the workdir with the mock API URL in
// its environment.
func (r *runner) testCommand(ctx context.Context, name string, arg ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = r.workDir

	env := os.Environ()
	if r.mockURL != "" {
		env = append(env, fmt.Sprintf("%s=%s", MockURLEnvVar, r.mockURL))
	}
	cmd.Env = env

	return cmd
}
