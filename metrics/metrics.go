package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adaptive-agent/api-harness/types"
)

const (
	MetricsNamespace = "harness"
)

var (
	validResults         = []types.CheckStatus{types.CheckStatusPass, types.CheckStatusFail, types.CheckStatusSkip}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "checks_total",
		Help:      "Count of executed checks",
	}, []string{
		"run_id",
		"phase",
		"kind",
		"name",
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of harness runs",
	}, []string{
		"run_id",
		"result",
	})

	runChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_checks_total",
		Help:      "Total number of checks in a harness run",
	}, []string{
		"run_id",
	})

	runChecksPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_checks_passed",
		Help:      "Number of passed checks in a harness run",
	}, []string{
		"run_id",
	})

	runChecksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_checks_failed",
		Help:      "Number of failed checks in a harness run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of harness runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordCheck records the outcome of a single check
func RecordCheck(runID string, phase string, kind string, name string, result types.CheckStatus) {
	if !isValidResult(result) {
		return
	}
	checksTotal.WithLabelValues(runID, phase, kind, name, string(result)).Inc()
}

// RecordRun records the aggregate outcome of a harness run
func RecordRun(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runChecksTotal.WithLabelValues(runID).Add(float64(total))
	runChecksPassed.WithLabelValues(runID).Add(float64(passed))
	runChecksFailed.WithLabelValues(runID).Add(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.CheckStatus) bool {
	return slices.Contains(validResults, result)
}
