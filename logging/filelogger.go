// Package logging writes per-run log files: one file per check, a combined
// log, and a run summary, all under a timestamped run directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/adaptive-agent/api-harness/types"
)

const (
	// RunDirectoryPrefix is the standardized prefix for run directories.
	RunDirectoryPrefix = "harnessrun-"

	allLogsFilename = "all.log"
	summaryFilename = "summary.log"
	failedDirName   = "failed"
	passedDirName   = "passed"
	latestLinkName  = "latest"
)

// ResultSink is an interface for different ways of consuming check results
type ResultSink interface {
	// Consume processes a single check result
	Consume(result *types.CheckResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// FileLogger handles writing check output to files
type FileLogger struct {
	baseDir     string // Base directory for logs
	runDir      string // Directory for this run
	failedDir   string // Directory for failed checks
	passedDir   string // Directory for passed checks
	summaryFile string
	allLogsFile string
	mu          sync.Mutex // Protects concurrent file operations
	sinks       []ResultSink
	runID       string
}

// NewFileLogger creates a new FileLogger rooted at baseDir for the given run
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	runDirName := fmt.Sprintf("%s%s-%s", RunDirectoryPrefix,
		time.Now().Format("20060102-150405"), shortID(runID))
	runDir := filepath.Join(baseDir, runDirName)

	l := &FileLogger{
		baseDir:     baseDir,
		runDir:      runDir,
		failedDir:   filepath.Join(runDir, failedDirName),
		passedDir:   filepath.Join(runDir, passedDirName),
		summaryFile: filepath.Join(runDir, summaryFilename),
		allLogsFile: filepath.Join(runDir, allLogsFilename),
		runID:       runID,
	}

	for _, dir := range []string{l.failedDir, l.passedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
		}
	}

	l.sinks = append(l.sinks, &checkFileSink{logger: l}, &combinedLogSink{logger: l})

	l.updateLatestLink()

	return l, nil
}

// GetRunID returns the run ID this logger was created for
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// RunDir returns the directory holding this run's logs
func (l *FileLogger) RunDir() string {
	return l.runDir
}

// LogCheckResult passes a check result to every sink
func (l *FileLogger) LogCheckResult(result *types.CheckResult) error {
	for _, sink := range l.sinks {
		if err := sink.Consume(result, l.runID); err != nil {
			return err
		}
	}
	return nil
}

// LogSummary writes the run summary file
func (l *FileLogger) LogSummary(summary string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return os.WriteFile(l.summaryFile, []byte(stripansi.Strip(summary)), 0o644)
}

// Complete finalizes every sink
func (l *FileLogger) Complete() error {
	for _, sink := range l.sinks {
		if err := sink.Complete(l.runID); err != nil {
			return err
		}
	}
	return nil
}

// updateLatestLink points <baseDir>/latest at this run's directory. Best
// effort: some filesystems refuse symlinks.
func (l *FileLogger) updateLatestLink() {
	link := filepath.Join(l.baseDir, latestLinkName)
	_ = os.Remove(link)
	_ = os.Symlink(l.runDir, link)
}

// checkFileSink writes one file per check, under failed/ or passed/
type checkFileSink struct {
	logger *FileLogger
}

func (s *checkFileSink) Consume(result *types.CheckResult, runID string) error {
	dir := s.logger.passedDir
	if result.Status == types.CheckStatusFail {
		dir = s.logger.failedDir
	}

	path := filepath.Join(dir, checkFilename(result))

	s.logger.mu.Lock()
	defer s.logger.mu.Unlock()
	return os.WriteFile(path, []byte(formatCheck(result)), 0o644)
}

func (s *checkFileSink) Complete(runID string) error { return nil }

// combinedLogSink appends every check to all.log
type combinedLogSink struct {
	logger *FileLogger
}

func (s *combinedLogSink) Consume(result *types.CheckResult, runID string) error {
	s.logger.mu.Lock()
	defer s.logger.mu.Unlock()

	f, err := os.OpenFile(s.logger.allLogsFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening combined log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatCheck(result)); err != nil {
		return fmt.Errorf("writing combined log: %w", err)
	}
	return nil
}

func (s *combinedLogSink) Complete(runID string) error { return nil }

// formatCheck renders one check for the log files, with ANSI sequences
// stripped so the files stay grep-able.
func formatCheck(result *types.CheckResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s / %s [%s] (%.1fs)\n",
		result.Metadata.Phase, result.Metadata.GetName(), result.Status,
		result.Duration.Seconds())
	if result.Error != nil {
		fmt.Fprintf(&b, "error: %s\n", stripansi.Strip(result.Error.Error()))
	}
	if result.Stdout != "" {
		b.WriteString(stripansi.Strip(result.Stdout))
		if !strings.HasSuffix(result.Stdout, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

// checkFilename builds a safe filename for a check's log file
func checkFilename(result *types.CheckResult) string {
	name := fmt.Sprintf("%s-%s.log", result.Metadata.Phase, result.Metadata.GetName())
	replacer := strings.NewReplacer("/", "-", " ", "_", ":", "-")
	return replacer.Replace(name)
}

func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
