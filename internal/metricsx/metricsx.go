// Package metricsx defines the Prometheus metrics each HemoStat agent
// exports on its /metrics endpoint.
package metricsx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the counters and histograms a single agent process
// registers. Agents that don't emit a given metric (e.g. Observer never
// runs AI analysis) simply never touch that field.
type Registry struct {
	PollDuration          prometheus.Histogram
	ContainersObserved    prometheus.Gauge
	AnomaliesDetected     *prometheus.CounterVec
	HealthAlertsPublished prometheus.Counter

	AnalysisDuration    prometheus.Histogram
	AnalysisDecisions   *prometheus.CounterVec
	AIFallbackTotal     prometheus.Counter
	AIRetriesTotal      prometheus.Counter

	RemediationAttempts  *prometheus.CounterVec
	RemediationDuration  prometheus.Histogram
	CooldownRejections   prometheus.Counter
	CircuitBreakerTrips  prometheus.Counter

	BusOperationsTotal *prometheus.CounterVec

	ScansTotal           *prometheus.CounterVec
	ScanDuration         prometheus.Histogram
	VulnerabilitiesFound *prometheus.CounterVec
}

// New registers a fresh Registry under the fixed "hemostat" namespace and
// the given subsystem (e.g. subsystem="observer") against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across package-level test runs.
func New(reg prometheus.Registerer, subsystem string) *Registry {
	factory := promauto.With(reg)
	namespace := "hemostat"

	return &Registry{
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_duration_seconds",
			Help:      "Time spent completing one poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		ContainersObserved: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "containers_observed",
			Help:      "Number of containers seen in the most recent poll.",
		}),
		AnomaliesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "anomalies_detected_total",
			Help:      "Anomalies detected, labeled by type and severity.",
		}, []string{"type", "severity"}),
		HealthAlertsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_alerts_published_total",
			Help:      "Health alerts published to the bus.",
		}),

		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent analyzing one health alert.",
			Buckets:   prometheus.DefBuckets,
		}),
		AnalysisDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analysis_decisions_total",
			Help:      "Analysis outcomes, labeled by action and method.",
		}, []string{"action", "method"}),
		AIFallbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ai_fallback_total",
			Help:      "Times AI analysis fell back to rule-based analysis.",
		}),
		AIRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ai_retries_total",
			Help:      "AI backend call retries across all analyses.",
		}),

		RemediationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "remediation_attempts_total",
			Help:      "Remediation attempts, labeled by action and status.",
		}, []string{"action", "status"}),
		RemediationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "remediation_duration_seconds",
			Help:      "Time spent executing one remediation action.",
			Buckets:   prometheus.DefBuckets,
		}),
		CooldownRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cooldown_rejections_total",
			Help:      "Remediations rejected because a container is in cooldown.",
		}),
		CircuitBreakerTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "circuit_breaker_trips_total",
			Help:      "Times a per-container remediation circuit breaker opened.",
		}),

		BusOperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bus_operations_total",
			Help:      "Message bus operations, labeled by op and outcome.",
		}, []string{"op", "outcome"}),

		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scans_total",
			Help:      "Image scans attempted, labeled by outcome.",
		}, []string{"outcome"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_duration_seconds",
			Help:      "Time spent scanning one image.",
			Buckets:   prometheus.DefBuckets,
		}),
		VulnerabilitiesFound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "vulnerabilities_found_total",
			Help:      "Vulnerabilities found, labeled by severity.",
		}, []string{"severity"}),
	}
}

// Serve exposes reg's metrics over HTTP on addr until ctx is canceled,
// then shuts down gracefully. Every agent process calls this once
// alongside its own Run loop.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
