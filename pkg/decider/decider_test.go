package decider

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/internal/llm"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
)

type fakeBus struct {
	kv        map[string]string
	published map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{kv: map[string]string{}, published: map[string][][]byte{}}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}
func (b *fakeBus) Subscribe(ctx context.Context, channels ...string) (bus.Subscription, error) {
	return nil, nil
}
func (b *fakeBus) Get(ctx context.Context, key string) (string, error) {
	v, ok := b.kv[key]
	if !ok {
		return "", bus.ErrKeyNotFound
	}
	return v, nil
}
func (b *fakeBus) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b.kv[key] = value
	return nil
}
func (b *fakeBus) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (b *fakeBus) Del(ctx context.Context, key string) error                      { delete(b.kv, key); return nil }
func (b *fakeBus) LPush(ctx context.Context, key, value string) error             { return nil }
func (b *fakeBus) LTrim(ctx context.Context, key string, count int64) error       { return nil }
func (b *fakeBus) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, nil
}
func (b *fakeBus) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (b *fakeBus) LLen(ctx context.Context, key string) (int64, error) { return 0, nil }
func (b *fakeBus) Scan(ctx context.Context, pattern string) ([]string, error) { return nil, nil }
func (b *fakeBus) Close() error                                        { return nil }

func TestNew_NullBackendDisablesAI(t *testing.T) {
	d := New(newFakeBus(), llm.NullBackend{}, nil, clock.NewMock(time.Now()), Config{
		ConfidenceThreshold: 0.7, HistorySize: 10, AIFallbackEnabled: true,
	})
	if d.aiEnabled {
		t.Error("aiEnabled should be false when backend is NullBackend, regardless of config")
	}
}

func TestHandleAlert_RuleBasedRoutesToRemediationNeeded(t *testing.T) {
	b := newFakeBus()
	d := New(b, llm.NullBackend{}, nil, clock.NewMock(time.Now()), Config{
		ConfidenceThreshold: 0.7, HistorySize: 10, HistoryTTL: time.Hour,
	})

	alert := events.HealthAlert{ContainerID: "c1", ContainerName: "web-1", ExitCode: 1}
	d.handleAlert(context.Background(), "corr-id", alert)

	msgs := b.published[events.ChannelRemediationNeeded]
	if len(msgs) != 1 {
		t.Fatalf("expected 1 remediation_needed message, got %d (false_alarm=%d)",
			len(msgs), len(b.published[events.ChannelFalseAlarm]))
	}

	var env events.Envelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.EventType != events.TypeRemediationNeeded {
		t.Errorf("EventType = %v, want %v", env.EventType, events.TypeRemediationNeeded)
	}
}

func TestHandleAlert_LowConfidenceRoutesToFalseAlarm(t *testing.T) {
	b := newFakeBus()
	d := New(b, llm.NullBackend{}, nil, clock.NewMock(time.Now()), Config{
		ConfidenceThreshold: 0.7, HistorySize: 10, HistoryTTL: time.Hour,
	})

	// No anomalies, healthy, no exit code -> default rule, confidence 0.5 < 0.7.
	alert := events.HealthAlert{ContainerID: "c1", ContainerName: "web-1"}
	d.handleAlert(context.Background(), "corr-id", alert)

	if len(b.published[events.ChannelFalseAlarm]) != 1 {
		t.Fatalf("expected 1 false_alarm message, got %d", len(b.published[events.ChannelFalseAlarm]))
	}
	if len(b.published[events.ChannelRemediationNeeded]) != 0 {
		t.Error("expected no remediation_needed message")
	}
}

func TestHandleAlert_AppendsAndBoundsHistory(t *testing.T) {
	b := newFakeBus()
	d := New(b, llm.NullBackend{}, nil, clock.NewMock(time.Now()), Config{
		ConfidenceThreshold: 0.7, HistorySize: 2, HistoryTTL: time.Hour,
	})

	for i := 0; i < 3; i++ {
		d.handleAlert(context.Background(), "corr-id", events.HealthAlert{ContainerName: "web-1"})
	}

	raw, err := b.Get(context.Background(), events.AlertHistoryKey("web-1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var h alertHistory
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(h.Alerts) != 2 {
		t.Errorf("len(Alerts) = %d, want 2 (bounded by HistorySize)", len(h.Alerts))
	}
}

func TestRoute_ActionNoneDespiteHighConfidenceIsFalseAlarm(t *testing.T) {
	b := newFakeBus()
	d := New(b, llm.NullBackend{}, nil, clock.NewMock(time.Now()), Config{ConfidenceThreshold: 0.5})

	d.route(context.Background(), "corr-id", events.AnalysisResult{
		ContainerName: "web-1", Action: events.ActionNone, Confidence: 0.95, IsFalseAlarm: false,
	})

	if len(b.published[events.ChannelFalseAlarm]) != 1 {
		t.Error("expected action=none with high confidence to route to false_alarm")
	}
}
