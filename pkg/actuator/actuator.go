// Package actuator implements the Actuator agent: it subscribes to
// remediation_needed, gates each request behind a per-container cooldown
// and circuit breaker, executes the requested action (or simulates it in
// dry-run mode), records the outcome, and always publishes
// remediation_complete plus an audit trail entry.
package actuator

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

const dryRunSimulatedDelay = 500 * time.Millisecond

// Config is the subset of internal/config.Config Actuator needs.
type Config struct {
	Cooldown             time.Duration
	MaxRetriesPerHour    int
	DryRun               bool
	EnforceExecAllowlist bool
	ExecAllowlistPath    string
}

// Actuator consumes remediation_needed events and carries out (or
// simulates) the requested action against the container runtime.
type Actuator struct {
	runtime runtime.ContainerRuntime
	bus     bus.Bus
	clock   clock.Clock
	metrics *metricsx.Registry
	log     *logrus.Entry

	cooldown             time.Duration
	maxRetriesPerHour    int
	dryRun               bool
	enforceExecAllowlist bool
	allowlist            []string
}

// New builds an Actuator. rt and b must be non-nil; clk defaults to the
// real wall clock when nil.
func New(rt runtime.ContainerRuntime, b bus.Bus, m *metricsx.Registry, clk clock.Clock, cfg Config) *Actuator {
	if clk == nil {
		clk = clock.New()
	}
	return &Actuator{
		runtime:              rt,
		bus:                  b,
		clock:                clk,
		metrics:              m,
		log:                  logging.ForAgent("actuator"),
		cooldown:             cfg.Cooldown,
		maxRetriesPerHour:    cfg.MaxRetriesPerHour,
		dryRun:               cfg.DryRun,
		enforceExecAllowlist: cfg.EnforceExecAllowlist,
		allowlist:            loadAllowlist(cfg.ExecAllowlistPath),
	}
}

// Run subscribes to remediation_needed and processes messages until ctx
// is canceled or the subscription errors.
func (a *Actuator) Run(ctx context.Context) error {
	sub, err := a.bus.Subscribe(ctx, events.ChannelRemediationNeeded)
	if err != nil {
		return err
	}
	defer sub.Close()

	a.log.Info("actuator subscribed to remediation_needed")
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.log.Info("actuator loop stopped")
				return ctx.Err()
			}
			a.log.WithField("error", err.Error()).Error("error receiving remediation request")
			continue
		}

		var env events.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			a.log.WithField("error", err.Error()).Error("malformed remediation request envelope")
			continue
		}
		req, err := decodeAnalysisResult(env.Data)
		if err != nil {
			a.log.WithField("error", err.Error()).Error("malformed remediation request payload")
			continue
		}

		a.executeRemediation(ctx, env.CorrelationID, req)
	}
}

func decodeAnalysisResult(data interface{}) (events.AnalysisResult, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return events.AnalysisResult{}, err
	}
	var result events.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return events.AnalysisResult{}, err
	}
	return result, nil
}

// executeRemediation runs the full accept/reject/act/record/publish/audit
// sequence for a single remediation request: cooldown, then circuit
// breaker, then dry-run simulation or the real action handler, then
// history and breaker bookkeeping, then remediation_complete and the
// audit trail entry, published and logged regardless of outcome.
func (a *Actuator) executeRemediation(ctx context.Context, correlationID string, req events.AnalysisResult) {
	container := req.ContainerName
	log := a.log.WithField("container_name", container).WithField("action", string(req.Action))

	if !a.checkCooldown(ctx, container) {
		remaining := a.cooldownRemaining(ctx, container)
		log.WithField("remaining_seconds", remaining).Info("remediation rejected: cooldown active")
		if a.metrics != nil {
			a.metrics.CooldownRejections.Inc()
		}
		result := events.RemediationResult{
			Status:           events.StatusRejected,
			Reason:           events.ReasonCooldownActive,
			Error:            events.ReasonCooldownActive,
			RemainingSeconds: remaining,
		}
		a.publishOutcome(ctx, correlationID, req, result, false)
		return
	}

	if !a.checkCircuitBreaker(ctx, container) {
		retryCount := a.circuitBreakerRetryCount(ctx, container)
		log.WithField("retry_count", retryCount).Info("remediation rejected: circuit breaker open")
		result := events.RemediationResult{
			Status:     events.StatusRejected,
			Reason:     events.ReasonCircuitBreakerOpen,
			Error:      events.ReasonCircuitBreakerOpen,
			RetryCount: retryCount,
		}
		a.publishOutcome(ctx, correlationID, req, result, false)
		return
	}

	start := a.clock.Now()
	var result events.RemediationResult
	dryRun := a.dryRun

	if dryRun {
		a.clock.Sleep(dryRunSimulatedDelay)
		result = events.RemediationResult{Status: events.StatusSuccess, Details: "dry run: action simulated"}
	} else {
		result = a.dispatch(ctx, container, req.Action)
	}

	if a.metrics != nil {
		a.metrics.RemediationDuration.Observe(a.clock.Since(start).Seconds())
		a.metrics.RemediationAttempts.WithLabelValues(string(req.Action), string(result.Status)).Inc()
	}

	if !dryRun && result.Status != events.StatusNotApplicable {
		success := result.Status == events.StatusSuccess
		a.updateRemediationHistory(ctx, container, req.Action, result.Status)
		a.updateCircuitBreaker(ctx, container, success)
	}

	log.WithField("status", string(result.Status)).WithField("dry_run", dryRun).Info("remediation complete")
	a.publishOutcome(ctx, correlationID, req, result, dryRun)
}

func (a *Actuator) dispatch(ctx context.Context, container string, action events.ActionType) events.RemediationResult {
	switch action {
	case events.ActionRestart:
		return a.restart(ctx, container)
	case events.ActionScaleUp:
		return a.scaleUp(ctx, container)
	case events.ActionCleanup:
		return a.cleanup(ctx, container)
	case events.ActionExec:
		return a.exec(ctx, container, "")
	default:
		return events.RemediationResult{Status: events.StatusFailed, Error: "unknown action: " + string(action)}
	}
}

// publishOutcome publishes remediation_complete and appends the audit
// trail entry, the two steps that happen unconditionally regardless of
// whether the request was rejected, simulated, or actually executed.
func (a *Actuator) publishOutcome(ctx context.Context, correlationID string, req events.AnalysisResult, result events.RemediationResult, dryRun bool) {
	outcome := events.RemediationOutcome{
		Container:  req.ContainerName,
		Action:     req.Action,
		DryRun:     dryRun,
		Reason:     req.Reason,
		Confidence: req.Confidence,
		Result:     result,
	}

	envelope := events.NewCorrelatedEnvelope(events.TypeRemediationComplete, events.AgentActuator, outcome, correlationID)
	payload, err := json.Marshal(envelope)
	if err != nil {
		a.log.WithField("error", err.Error()).Error("failed to marshal remediation outcome")
	} else if err := a.bus.Publish(ctx, events.ChannelRemediationDone, payload); err != nil {
		a.log.WithField("error", err.Error()).Error("failed to publish remediation outcome")
	}

	a.logAuditTrail(ctx, correlationID, req, result, dryRun)
}

func (a *Actuator) logAuditTrail(ctx context.Context, correlationID string, req events.AnalysisResult, result events.RemediationResult, dryRun bool) {
	entry := events.NewAuditEntry(correlationID, req.ContainerName, req.Action, req.Reason, req.Confidence, dryRun, result, a.clock.Now().UTC())

	payload, err := json.Marshal(entry)
	if err != nil {
		a.log.WithField("error", err.Error()).Error("failed to marshal audit entry")
		return
	}

	key := events.AuditKey(req.ContainerName)
	if err := a.bus.LPush(ctx, key, string(payload)); err != nil {
		a.log.WithField("error", err.Error()).Error("failed to append audit entry")
		return
	}
	if err := a.bus.LTrim(ctx, key, 100); err != nil {
		a.log.WithField("error", err.Error()).Error("failed to trim audit trail")
	}
	if err := a.bus.Expire(ctx, key, events.TTLAudit); err != nil {
		a.log.WithField("error", err.Error()).Error("failed to set audit trail TTL")
	}
}
