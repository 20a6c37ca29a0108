package decider

import (
	"strings"

	"github.com/jondmarien/hemostat/internal/events"
)

// analyze is the deterministic rule ladder, evaluated in order with the
// first matching rule winning. Do not reorder: later rules assume every
// earlier rule already failed to match, and their confidence values are
// calibrated against that ordering.
func analyze(alert events.HealthAlert, history []events.HealthAlert) events.AnalysisResult {
	result := events.AnalysisResult{
		ContainerID:    alert.ContainerID,
		ContainerName:  alert.ContainerName,
		AnalysisMethod: events.MethodRuleBased,
	}

	// Rule 1: non-zero exit code.
	if alert.ExitCode != 0 {
		result.Action = events.ActionRestart
		result.Reason = "container exited with non-zero code"
		result.Confidence = 0.9
		result.IsFalseAlarm = false
		return result
	}

	// Rule 2: excessive restarts trips the circuit breaker.
	if alert.RestartCount > 5 {
		result.Action = events.ActionNone
		result.Reason = "excessive restarts detected; circuit breaker activated"
		result.Confidence = 0.6
		result.IsFalseAlarm = true
		return result
	}

	// Rule 3: any critical-severity anomaly.
	if types := criticalAnomalyTypes(alert.Anomalies); len(types) > 0 {
		result.Action = events.ActionRestart
		result.Reason = "critical anomalies detected: " + strings.Join(types, ", ")
		result.Confidence = 0.85
		result.IsFalseAlarm = false
		return result
	}

	// Rule 4: failing health check.
	if alert.HealthStatus == events.HealthUnhealthy {
		result.Action = events.ActionRestart
		result.Reason = "container health check failed"
		result.Confidence = 0.7
		result.IsFalseAlarm = false
		return result
	}

	// Rule 5: sustained high CPU.
	cpuTrend := detectMetricTrend(history, cpuMetric)
	if alert.Metrics.CPUPercent > 90 && (cpuTrend == trendIncreasing || cpuTrend == trendStable) {
		result.Action = events.ActionRestart
		result.Reason = "sustained high CPU usage"
		result.Confidence = 0.75
		result.IsFalseAlarm = false
		return result
	}

	// Rule 6: memory leak pattern.
	memoryTrend := detectMetricTrend(history, memoryMetric)
	if memoryTrend == trendIncreasing && alert.Metrics.MemoryPercent > 70 {
		result.Action = events.ActionRestart
		result.Reason = "memory leak pattern detected; memory usage increasing"
		result.Confidence = 0.8
		result.IsFalseAlarm = false
		return result
	}

	// Rule 7: a single transient medium-severity anomaly with no history.
	mediumCount := countBySeverity(alert.Anomalies, events.SeverityMedium)
	if len(alert.Anomalies) == 1 && mediumCount == 1 && len(history) == 0 {
		result.Action = events.ActionNone
		result.Reason = "transient spike detected; likely false alarm"
		result.Confidence = 0.65
		result.IsFalseAlarm = true
		return result
	}

	// Default: not enough evidence to act.
	result.Action = events.ActionNone
	result.Reason = "insufficient evidence for remediation"
	result.Confidence = 0.5
	result.IsFalseAlarm = true
	return result
}

func criticalAnomalyTypes(anomalies []events.Anomaly) []string {
	var types []string
	for _, a := range anomalies {
		if a.Severity == events.SeverityCritical {
			types = append(types, string(a.Type))
		}
	}
	return types
}

func countBySeverity(anomalies []events.Anomaly, sev events.Severity) int {
	n := 0
	for _, a := range anomalies {
		if a.Severity == sev {
			n++
		}
	}
	return n
}

type trend string

const (
	trendUnknown    trend = "unknown"
	trendIncreasing trend = "increasing"
	trendDecreasing trend = "decreasing"
	trendStable     trend = "stable"
)

type metricSelector func(events.Metrics) float64

var (
	cpuMetric    metricSelector = func(m events.Metrics) float64 { return m.CPUPercent }
	memoryMetric metricSelector = func(m events.Metrics) float64 { return m.MemoryPercent }
)

// detectMetricTrend looks at the last five history entries' values for
// the selected metric and averages the pairwise differences: an average
// swing over +5 is "increasing", under -5 is "decreasing", otherwise
// "stable". Fewer than two historical entries, or fewer than two usable
// values, is "unknown".
func detectMetricTrend(history []events.HealthAlert, metric metricSelector) trend {
	if len(history) < 2 {
		return trendUnknown
	}

	window := history
	if len(window) > 5 {
		window = window[len(window)-5:]
	}

	values := make([]float64, 0, len(window))
	for _, h := range window {
		values = append(values, metric(h.Metrics))
	}
	if len(values) < 2 {
		return trendUnknown
	}

	var sumDiff float64
	for i := 0; i < len(values)-1; i++ {
		sumDiff += values[i+1] - values[i]
	}
	avgDiff := sumDiff / float64(len(values)-1)

	switch {
	case avgDiff > 5:
		return trendIncreasing
	case avgDiff < -5:
		return trendDecreasing
	default:
		return trendStable
	}
}
