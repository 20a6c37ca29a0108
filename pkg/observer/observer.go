// Package observer implements the Observer agent: it polls the container
// runtime on a fixed interval, derives resource metrics, detects
// anomalies against configurable thresholds, refreshes per-container
// state for the read model, and publishes a health_alert event for every
// container with at least one anomaly.
package observer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/internal/metricsx"
	"github.com/jondmarien/hemostat/internal/runtime"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

// Observer polls the runtime, derives metrics, detects anomalies and
// publishes health alerts. The zero value is not usable; build one with
// New.
type Observer struct {
	runtime runtime.ContainerRuntime
	bus     bus.Bus
	clock   clock.Clock
	metrics *metricsx.Registry
	log     *logrus.Entry

	pollInterval time.Duration
	thresholdCPU float64
	thresholdMem float64
}

// Config is the subset of internal/config.Config Observer needs.
type Config struct {
	PollInterval        time.Duration
	ThresholdCPUPercent float64
	ThresholdMemPercent float64
}

// New builds an Observer. rt and b must be non-nil; clk defaults to the
// real wall clock when nil.
func New(rt runtime.ContainerRuntime, b bus.Bus, m *metricsx.Registry, clk clock.Clock, cfg Config) *Observer {
	if clk == nil {
		clk = clock.New()
	}
	return &Observer{
		runtime:      rt,
		bus:          b,
		clock:        clk,
		metrics:      m,
		log:          logging.ForAgent("observer"),
		pollInterval: cfg.PollInterval,
		thresholdCPU: cfg.ThresholdCPUPercent,
		thresholdMem: cfg.ThresholdMemPercent,
	}
}

// Run blocks, polling on the configured interval until ctx is canceled.
// A failed poll cycle is logged and the loop continues; only ctx
// cancellation stops it.
func (o *Observer) Run(ctx context.Context) error {
	o.log.Info("starting observer loop")
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	o.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			o.log.Info("observer loop stopped")
			return ctx.Err()
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

func (o *Observer) poll(ctx context.Context) {
	start := o.clock.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.PollDuration.Observe(o.clock.Since(start).Seconds())
		}
	}()

	containers, err := o.runtime.ListContainers(ctx, true)
	if err != nil {
		o.log.WithField("error", err.Error()).Error("failed to list containers")
		return
	}
	if o.metrics != nil {
		o.metrics.ContainersObserved.Set(float64(len(containers)))
	}

	o.log.WithField("count", len(containers)).Debug("polling containers")
	for _, c := range containers {
		if err := o.checkContainer(ctx, c); err != nil {
			o.log.WithField("container_name", c.Name).WithField("error", err.Error()).
				Error("error checking container health")
		}
	}
}

func (o *Observer) checkContainer(ctx context.Context, c runtime.ContainerSummary) error {
	stats, err := o.runtime.ContainerStats(ctx, c.ID)
	if err != nil {
		return err
	}
	attrs, err := o.runtime.InspectContainer(ctx, c.ID)
	if err != nil {
		return err
	}

	metrics := events.Metrics{
		CPUPercent:    runtime.CPUPercent(stats),
		MemoryPercent: runtime.MemoryPercent(stats),
		MemoryUsage:   stats.MemoryUsage,
		MemoryLimit:   stats.MemoryLimit,
		NetRx:         stats.NetRx,
		NetTx:         stats.NetTx,
		BlkioRead:     stats.BlkioRead,
		BlkioWrite:    stats.BlkioWrite,
	}

	anomalies := o.detectAnomalies(c, attrs, metrics)

	state := events.ContainerState{
		ContainerID:   c.ID,
		ContainerName: c.Name,
		Image:         c.Image,
		Status:        attrs.Status,
		Metrics:       metrics,
		HealthStatus:  events.HealthStatus(attrs.HealthStatus),
		RestartCount:  attrs.RestartCount,
		LastPolled:    o.clock.Now().UTC(),
	}
	if err := o.storeContainerState(ctx, c.ID, state); err != nil {
		o.log.WithField("container_name", c.Name).WithField("error", err.Error()).
			Warn("failed to store container state")
	}

	if len(anomalies) == 0 {
		o.log.WithField("container_name", c.Name).Debug("container is healthy")
		return nil
	}
	return o.publishHealthAlert(ctx, c, attrs, metrics, anomalies)
}

// detectAnomalies mirrors the anomaly ladder: CPU and memory each get
// critical (>95%), high (>threshold), or medium (>80% of threshold)
// severity; unhealthy health status, a non-zero exit on an exited
// container, and more than five restarts are each a fixed-severity
// anomaly of their own.
func (o *Observer) detectAnomalies(c runtime.ContainerSummary, attrs runtime.ContainerAttrs, m events.Metrics) []events.Anomaly {
	var anomalies []events.Anomaly

	if a, ok := thresholdAnomaly(events.AnomalyHighCPU, m.CPUPercent, o.thresholdCPU); ok {
		anomalies = append(anomalies, a)
	}
	if a, ok := thresholdAnomaly(events.AnomalyHighMemory, m.MemoryPercent, o.thresholdMem); ok {
		anomalies = append(anomalies, a)
	}

	healthStatus := events.HealthStatus(attrs.HealthStatus)
	if healthStatus != events.HealthHealthy && healthStatus != events.HealthUnknown && healthStatus != "" {
		anomalies = append(anomalies, events.Anomaly{
			Type:     events.AnomalyUnhealthyStatus,
			Severity: events.SeverityHigh,
			Details:  map[string]interface{}{"status": string(healthStatus)},
		})
	}

	if attrs.ExitCode != 0 && attrs.Status == "exited" {
		anomalies = append(anomalies, events.Anomaly{
			Type:     events.AnomalyNonZeroExit,
			Severity: events.SeverityHigh,
			Details:  map[string]interface{}{"exit_code": attrs.ExitCode},
		})
	}

	if attrs.RestartCount > 5 {
		anomalies = append(anomalies, events.Anomaly{
			Type:     events.AnomalyExcessiveRestarts,
			Severity: events.SeverityMedium,
			Details:  map[string]interface{}{"restart_count": attrs.RestartCount},
		})
	}

	if o.metrics != nil {
		for _, a := range anomalies {
			o.metrics.AnomaliesDetected.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		}
	}
	return anomalies
}

// thresholdAnomaly applies the critical/high/medium ladder shared by CPU
// and memory: critical above 95, high above threshold, medium above 80%
// of threshold, no anomaly otherwise.
func thresholdAnomaly(t events.AnomalyType, actual, threshold float64) (events.Anomaly, bool) {
	details := map[string]interface{}{"threshold": threshold, "actual": roundTo2(actual)}
	switch {
	case actual > threshold:
		severity := events.SeverityHigh
		if actual > 95 {
			severity = events.SeverityCritical
		}
		return events.Anomaly{Type: t, Severity: severity, Details: details}, true
	case actual > 0.8*threshold:
		return events.Anomaly{Type: t, Severity: events.SeverityMedium, Details: details}, true
	default:
		return events.Anomaly{}, false
	}
}

func roundTo2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func (o *Observer) storeContainerState(ctx context.Context, id string, state events.ContainerState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return o.bus.Set(ctx, events.ContainerKey(id), string(payload), events.TTLContainerState)
}

func (o *Observer) publishHealthAlert(ctx context.Context, c runtime.ContainerSummary, attrs runtime.ContainerAttrs, m events.Metrics, anomalies []events.Anomaly) error {
	alert := events.HealthAlert{
		ContainerID:   c.ID,
		ContainerName: c.Name,
		Image:         c.Image,
		Status:        attrs.Status,
		Metrics:       m,
		HealthStatus:  events.HealthStatus(attrs.HealthStatus),
		ExitCode:      attrs.ExitCode,
		RestartCount:  attrs.RestartCount,
		Anomalies:     anomalies,
	}

	envelope := events.NewEnvelope(events.TypeHealthAlert, events.AgentObserver, alert)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if err := o.bus.Publish(ctx, events.ChannelHealthAlert, payload); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.HealthAlertsPublished.Inc()
	}
	o.log.WithField("container_name", c.Name).WithField("anomaly_count", len(anomalies)).
		Warn("health alert published")
	return nil
}
