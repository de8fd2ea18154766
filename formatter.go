package harness

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"

	"github.com/adaptive-agent/api-harness/runner"
	"github.com/adaptive-agent/api-harness/types"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *runner.RunResult) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger *zap.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger *zap.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the run results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.RunResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("API Harness Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Checks", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Checks", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, phaseID := range result.PhaseOrder {
		phase := result.Phases[phaseID]
		if phase == nil {
			continue
		}

		// Phase row - show check counts but no "1" in Checks column
		t.AppendRow(table.Row{
			"Phase",
			phase.ID,
			formatDuration(phase.Duration),
			"-", // Don't count a phase as a check
			phase.Stats.Passed,
			phase.Stats.Failed,
			phase.Stats.Skipped,
			getResultString(phase.Status),
			"",
		})

		for i, key := range phase.CheckOrder {
			check := phase.Checks[key]
			if check == nil {
				continue
			}

			prefix := "├─"
			if i == len(phase.CheckOrder)-1 {
				prefix = "└─"
			}

			t.AppendRow(table.Row{
				"",
				fmt.Sprintf("%s %s", prefix, types.GetCheckDisplayName(key, check.Metadata)),
				formatDuration(check.Duration),
				"1", // Count actual check
				boolToInt(check.Status == types.CheckStatusPass),
				boolToInt(check.Status == types.CheckStatusFail),
				boolToInt(check.Status == types.CheckStatusSkip),
				getResultString(check.Status),
				extractKeyErrorMessage(check.Error),
			})

			// Print sub-checks produced by whole-package runs
			subNames := make([]string, 0, len(check.SubChecks))
			for name := range check.SubChecks {
				subNames = append(subNames, name)
			}
			sort.Strings(subNames)
			for j, name := range subNames {
				sub := check.SubChecks[name]
				subPrefix := "   ├─"
				if j == len(subNames)-1 {
					subPrefix = "   └─"
				}

				t.AppendRow(table.Row{
					"",
					fmt.Sprintf("%s %s", subPrefix, name),
					formatDuration(sub.Duration),
					"1",
					boolToInt(sub.Status == types.CheckStatusPass),
					boolToInt(sub.Status == types.CheckStatusFail),
					boolToInt(sub.Status == types.CheckStatusSkip),
					getResultString(sub.Status),
					extractKeyErrorMessage(sub.Error),
				})
			}
		}

		t.AppendSeparator()
	}

	// Update the table style setting based on result status
	if result.Status == types.CheckStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.Status == types.CheckStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		getResultString(result.Status),
		"",
	})

	t.Render()

	fmt.Println(result.String())

	return nil
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a colored string representing the check result
func getResultString(status types.CheckStatus) string {
	switch status {
	case types.CheckStatusPass:
		return "✓ pass"
	case types.CheckStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// extractKeyErrorMessage collapses multi-line check errors into the first
// informative line so the results table stays readable.
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
