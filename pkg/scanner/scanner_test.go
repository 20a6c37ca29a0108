package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
)

type fakeResolver struct {
	digests map[string]string
	err     error
}

func (r *fakeResolver) Digest(ctx context.Context, image string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.digests[image], nil
}

type fakeSource struct {
	findings map[string][]events.VulnerabilityFinding
	err      error
}

func (s *fakeSource) Findings(ctx context.Context, image, digest string) ([]events.VulnerabilityFinding, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.findings[image], nil
}

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
func (b *fakeBus) Close() error                                              { return nil }

func TestScanTarget_NoFindings_StoresButDoesNotAlert(t *testing.T) {
	resolver := &fakeResolver{digests: map[string]string{"web:latest": "sha256:abc"}}
	source := &fakeSource{findings: map[string][]events.VulnerabilityFinding{}}
	b := newFakeBus()
	s := New(resolver, source, b, nil, clock.NewMock(time.Now()), Config{ScanInterval: time.Hour})

	if err := s.scanTarget(context.Background(), "web:latest"); err != nil {
		t.Fatalf("scanTarget: %v", err)
	}

	if _, ok := b.kv[events.ScanStateKey("sha256:abc")]; !ok {
		t.Error("expected scan report to be stored")
	}
	if len(b.published[events.ChannelAlerts]) != 0 {
		t.Error("expected no alert published for a clean scan")
	}
}

func TestScanTarget_HighSeverity_PublishesAlert(t *testing.T) {
	resolver := &fakeResolver{digests: map[string]string{"web:latest": "sha256:abc"}}
	source := &fakeSource{findings: map[string][]events.VulnerabilityFinding{
		"web:latest": {{CVE: "CVE-2024-1", Severity: events.VulnHigh}},
	}}
	b := newFakeBus()
	s := New(resolver, source, b, nil, clock.NewMock(time.Now()), Config{ScanInterval: time.Hour})

	if err := s.scanTarget(context.Background(), "web:latest"); err != nil {
		t.Fatalf("scanTarget: %v", err)
	}

	msgs := b.published[events.ChannelAlerts]
	if len(msgs) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(msgs))
	}
	var env events.Envelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.EventType != events.TypeVulnerabilityAlert {
		t.Errorf("event type = %q, want %q", env.EventType, events.TypeVulnerabilityAlert)
	}
}

func TestScanTarget_ResolverError_PropagatesAndSkipsPublish(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("registry unreachable")}
	b := newFakeBus()
	s := New(resolver, NullSource{}, b, nil, clock.NewMock(time.Now()), Config{ScanInterval: time.Hour})

	if err := s.scanTarget(context.Background(), "web:latest"); err == nil {
		t.Fatal("expected error")
	}
	if len(b.published[events.ChannelAlerts]) != 0 {
		t.Error("expected no alert published on resolver error")
	}
}

func TestWorstSeverity(t *testing.T) {
	findings := []events.VulnerabilityFinding{
		{Severity: events.VulnLow},
		{Severity: events.VulnCritical},
		{Severity: events.VulnMedium},
	}
	if got := worstSeverity(findings); got != events.VulnCritical {
		t.Errorf("worstSeverity = %q, want %q", got, events.VulnCritical)
	}
	if got := worstSeverity(nil); got != "" {
		t.Errorf("worstSeverity(nil) = %q, want empty", got)
	}
}

func TestNew_DefaultsSourceAndTargets(t *testing.T) {
	resolver := &fakeResolver{digests: map[string]string{}}
	s := New(resolver, nil, newFakeBus(), nil, nil, Config{ScanInterval: time.Hour})

	if s.source == nil {
		t.Fatal("expected NullSource default")
	}
	if len(s.currentTargets()) == 0 {
		t.Error("expected default targets when no targets path is configured")
	}
}
