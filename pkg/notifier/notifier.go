// Package notifier implements the Notifier agent: it subscribes to
// remediation_complete and false_alarm, stores every event for dashboard
// consumption, and, when enabled and a webhook is configured, delivers a
// formatted, deduplicated, retried Slack notification for each one.
package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/jondmarien/hemostat/internal/breaker"
	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
	"github.com/jondmarien/hemostat/pkg/shared/logging"
)

// Config is the subset of internal/config.Config Notifier needs.
type Config struct {
	SlackWebhookURL string
	AlertEnabled    bool
	EventTTL        time.Duration
	MaxEvents       int
	DedupeTTL       time.Duration
}

// Notifier consumes remediation_complete and false_alarm events, stores
// them for the dashboard, and relays Slack notifications.
type Notifier struct {
	bus     bus.Bus
	clock   clock.Clock
	log     *logrus.Entry
	breaker *breaker.Breaker
	client  *http.Client

	webhookURL string
	alertOn    bool
	eventTTL   time.Duration
	maxEvents  int
	dedupeTTL  time.Duration
}

// New builds a Notifier. b must be non-nil; clk defaults to the real
// wall clock when nil. A webhook URL without the expected Slack host
// prefix is logged as a warning but does not prevent startup; the URL is
// still used for delivery.
func New(b bus.Bus, clk clock.Clock, cfg Config) *Notifier {
	if clk == nil {
		clk = clock.New()
	}
	log := logging.ForAgent("notifier")

	webhookURL := strings.TrimSpace(cfg.SlackWebhookURL)
	if webhookURL != "" && !strings.HasPrefix(webhookURL, "https://hooks.slack.com/") {
		log.WithField("webhook_url_prefix", safePrefix(webhookURL)).Warn("invalid slack webhook URL format")
	}

	return &Notifier{
		bus:        b,
		clock:      clk,
		log:        log,
		breaker:    breaker.NewForWebhook("notifier-slack-webhook"),
		client:     NewWebhookClient(),
		webhookURL: webhookURL,
		alertOn:    cfg.AlertEnabled,
		eventTTL:   cfg.EventTTL,
		maxEvents:  cfg.MaxEvents,
		dedupeTTL:  cfg.DedupeTTL,
	}
}

func safePrefix(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}

// Run subscribes to remediation_complete and false_alarm and processes
// messages until ctx is canceled or the subscription errors.
func (n *Notifier) Run(ctx context.Context) error {
	sub, err := n.bus.Subscribe(ctx, events.ChannelRemediationDone, events.ChannelFalseAlarm)
	if err != nil {
		return err
	}
	defer sub.Close()

	n.log.Info("notifier subscribed to remediation_complete and false_alarm")
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				n.log.Info("notifier loop stopped")
				return ctx.Err()
			}
			n.log.WithField("error", err.Error()).Error("error receiving event")
			continue
		}

		var env events.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			n.log.WithField("error", err.Error()).Error("malformed event envelope")
			continue
		}

		switch msg.Channel {
		case events.ChannelRemediationDone:
			n.handleRemediationComplete(ctx, env)
		case events.ChannelFalseAlarm:
			n.handleFalseAlarm(ctx, env)
		default:
			n.log.WithField("channel", msg.Channel).Warn("event on unexpected channel")
		}
	}
}

func (n *Notifier) handleRemediationComplete(ctx context.Context, env events.Envelope) {
	outcome, err := decode[events.RemediationOutcome](env.Data)
	if err != nil {
		n.log.WithField("error", err.Error()).Error("malformed remediation_complete payload")
		return
	}
	n.log.WithField("container_name", outcome.Container).Info("received remediation_complete event")

	n.storeEvent(ctx, events.TypeRemediationComplete, events.AgentActuator, outcome)

	if !n.alertOn {
		return
	}
	msg := formatRemediationNotification(outcome, n.clock)
	n.notify(ctx, events.TypeRemediationComplete, env.Timestamp, msg)
}

func (n *Notifier) handleFalseAlarm(ctx context.Context, env events.Envelope) {
	result, err := decode[events.AnalysisResult](env.Data)
	if err != nil {
		n.log.WithField("error", err.Error()).Error("malformed false_alarm payload")
		return
	}
	n.log.WithField("container_name", result.ContainerName).Info("received false_alarm event")

	n.storeEvent(ctx, events.TypeFalseAlarm, events.AgentDecider, result)

	if !n.alertOn {
		return
	}
	msg := formatFalseAlarmNotification(result, n.clock)
	n.notify(ctx, events.TypeFalseAlarm, env.Timestamp, msg)
}

// notify ports _send_slack_notification: skip silently when no webhook
// is configured, skip a duplicate within the dedup window, otherwise
// send with retry and mark the event as sent on success.
func (n *Notifier) notify(ctx context.Context, eventType events.Type, eventTimestamp time.Time, msg slack.WebhookMessage) {
	if n.webhookURL == "" {
		n.log.Debug("slack webhook not configured, skipping notification")
		return
	}
	if n.isDuplicateEvent(ctx, eventType, eventTimestamp) {
		n.log.Debug("duplicate event detected, skipping slack notification")
		return
	}

	if err := n.sendWithRetry(ctx, n.client, msg); err != nil {
		n.log.WithField("error", err.Error()).Warn("slack notification failed after retries")
		return
	}
	n.markEventSent(ctx, eventType, eventTimestamp)
	n.log.WithField("event_type", string(eventType)).Info("slack notification sent")
}

func decode[T any](data interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
