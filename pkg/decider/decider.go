// Package decider implements the Decider agent: it subscribes to health
// alerts, attempts AI-backed root-cause analysis with a deterministic
// rule-ladder fallback, maintains bounded per-container alert history for
// trend detection, and routes its verdict to either remediation_needed or
// false_alarm based on confidence and the configured action.
package decider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jondmarien/hemostat/internal/breaker"
	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/internal/llm"
	"github.com/jondmarien/hemostat/internal/metricsx"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

// Config is the subset of internal/config.Config Decider needs.
type Config struct {
	ConfidenceThreshold float64
	HistorySize         int
	HistoryTTL          time.Duration
	AIFallbackEnabled   bool
}

// Decider consumes health_alert events and publishes either
// remediation_needed or false_alarm for each one.
type Decider struct {
	bus     bus.Bus
	llm     llm.Backend
	breaker *breaker.Breaker
	clock   clock.Clock
	metrics *metricsx.Registry
	log     *logrus.Entry

	confidenceThreshold float64
	historySize         int
	historyTTL          time.Duration
	aiEnabled           bool
}

// alertHistory is the JSON shape stored at state:alert_history:{name}.
type alertHistory struct {
	Container string               `json:"container"`
	Alerts    []events.HealthAlert `json:"alerts"`
}

// New builds a Decider. b and backend must be non-nil; clk defaults to
// the real wall clock when nil.
func New(b bus.Bus, backend llm.Backend, m *metricsx.Registry, clk clock.Clock, cfg Config) *Decider {
	if clk == nil {
		clk = clock.New()
	}
	_, isNull := backend.(llm.NullBackend)

	return &Decider{
		bus:                 b,
		llm:                 backend,
		breaker:             breaker.NewForLLM("decider-ai-backend"),
		clock:               clk,
		metrics:             m,
		log:                 logging.ForAgent("decider"),
		confidenceThreshold: cfg.ConfidenceThreshold,
		historySize:         cfg.HistorySize,
		historyTTL:          cfg.HistoryTTL,
		aiEnabled:           cfg.AIFallbackEnabled && !isNull,
	}
}

// Run subscribes to health_alert and processes messages until ctx is
// canceled or the subscription errors.
func (d *Decider) Run(ctx context.Context) error {
	sub, err := d.bus.Subscribe(ctx, events.ChannelHealthAlert)
	if err != nil {
		return err
	}
	defer sub.Close()

	d.log.Info("decider subscribed to health_alert")
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info("decider loop stopped")
				return ctx.Err()
			}
			d.log.WithField("error", err.Error()).Error("error receiving health alert")
			continue
		}

		var env events.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			d.log.WithField("error", err.Error()).Error("malformed health alert envelope")
			continue
		}
		alert, err := decodeHealthAlert(env.Data)
		if err != nil {
			d.log.WithField("error", err.Error()).Error("malformed health alert payload")
			continue
		}

		d.handleAlert(ctx, env.CorrelationID, alert)
	}
}

func decodeHealthAlert(data interface{}) (events.HealthAlert, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return events.HealthAlert{}, err
	}
	var alert events.HealthAlert
	if err := json.Unmarshal(raw, &alert); err != nil {
		return events.HealthAlert{}, err
	}
	return alert, nil
}

func (d *Decider) handleAlert(ctx context.Context, correlationID string, alert events.HealthAlert) {
	start := d.clock.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.AnalysisDuration.Observe(d.clock.Since(start).Seconds())
		}
	}()

	history := d.loadHistory(ctx, alert.ContainerName)

	var result events.AnalysisResult
	if d.aiEnabled {
		if ai := d.aiAnalyze(ctx, alert, history); ai != nil {
			result = *ai
		} else {
			if d.metrics != nil {
				d.metrics.AIFallbackTotal.Inc()
			}
			result = analyze(alert, history)
		}
	} else {
		result = analyze(alert, history)
	}

	d.appendHistory(ctx, alert)

	if d.metrics != nil {
		d.metrics.AnalysisDecisions.WithLabelValues(string(result.Action), string(result.AnalysisMethod)).Inc()
	}

	d.route(ctx, correlationID, result)
}

// route implements the confidence/action gate exactly: a declared false
// alarm always goes to false_alarm; otherwise confidence below threshold
// (or an actionable verdict that resolved to "none" despite high
// confidence) also goes to false_alarm, and only a high-confidence,
// actionable verdict goes to remediation_needed.
func (d *Decider) route(ctx context.Context, correlationID string, result events.AnalysisResult) {
	var (
		channel string
		typ     events.Type
	)
	switch {
	case result.IsFalseAlarm:
		channel, typ = events.ChannelFalseAlarm, events.TypeFalseAlarm
	case result.Confidence >= d.confidenceThreshold && result.Action != events.ActionNone:
		channel, typ = events.ChannelRemediationNeeded, events.TypeRemediationNeeded
	default:
		channel, typ = events.ChannelFalseAlarm, events.TypeFalseAlarm
	}

	envelope := events.NewCorrelatedEnvelope(typ, events.AgentDecider, result, correlationID)
	payload, err := json.Marshal(envelope)
	if err != nil {
		d.log.WithField("error", err.Error()).Error("failed to marshal analysis result")
		return
	}
	if err := d.bus.Publish(ctx, channel, payload); err != nil {
		d.log.WithField("error", err.Error()).Error("failed to publish analysis result")
		return
	}
	d.log.WithField("container_name", result.ContainerName).
		WithField("action", string(result.Action)).
		WithField("confidence", result.Confidence).
		WithField("channel", channel).
		Info("analysis routed")
}

func (d *Decider) loadHistory(ctx context.Context, containerName string) []events.HealthAlert {
	raw, err := d.bus.Get(ctx, events.AlertHistoryKey(containerName))
	if err != nil {
		return nil
	}
	var h alertHistory
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil
	}
	return h.Alerts
}

func (d *Decider) appendHistory(ctx context.Context, alert events.HealthAlert) {
	existing := d.loadHistory(ctx, alert.ContainerName)
	alerts := append(existing, alert)
	if len(alerts) > d.historySize {
		alerts = alerts[len(alerts)-d.historySize:]
	}

	payload, err := json.Marshal(alertHistory{Container: alert.ContainerName, Alerts: alerts})
	if err != nil {
		d.log.WithField("error", err.Error()).Error("failed to marshal alert history")
		return
	}
	if err := d.bus.Set(ctx, events.AlertHistoryKey(alert.ContainerName), string(payload), d.historyTTL); err != nil {
		d.log.WithField("error", err.Error()).Error("failed to store alert history")
	}
}
