package readmodel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jondmarien/hemostat/internal/bus"
	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
)

type fakeBus struct {
	kv    map[string]string
	lists map[string][]string
}

func newFakeBus() *fakeBus {
	return &fakeBus{kv: map[string]string{}, lists: map[string][]string{}}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }
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
func (b *fakeBus) LPush(ctx context.Context, key, value string) error {
	b.lists[key] = append([]string{value}, b.lists[key]...)
	return nil
}
func (b *fakeBus) LTrim(ctx context.Context, key string, count int64) error {
	if int64(len(b.lists[key])) > count {
		b.lists[key] = b.lists[key][:count]
	}
	return nil
}
func (b *fakeBus) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	list := b.lists[key]
	if stop < 0 || int(stop) >= len(list)-1 {
		return list, nil
	}
	return list[start : stop+1], nil
}
func (b *fakeBus) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (b *fakeBus) LLen(ctx context.Context, key string) (int64, error) {
	return int64(len(b.lists[key])), nil
}
func (b *fakeBus) Scan(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range b.kv {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
func (b *fakeBus) Close() error { return nil }

func testConfig() Config {
	return Config{Port: "0", MaxEvents: 100}
}

func pushEvent(t *testing.T, b *fakeBus, key string, e events.StoredEvent) {
	t.Helper()
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.LPush(context.Background(), key, string(raw)); err != nil {
		t.Fatal(err)
	}
}

func TestHandleHealth(t *testing.T) {
	s := New(newFakeBus(), clock.NewMock(time.Now()), testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleAllEvents_SortsNewestFirst(t *testing.T) {
	b := newFakeBus()
	clk := clock.NewMock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	s := New(b, clk, testConfig())

	older := events.StoredEvent{Timestamp: clk.Now().Add(-time.Hour), EventType: events.TypeFalseAlarm}
	newer := events.StoredEvent{Timestamp: clk.Now(), EventType: events.TypeRemediationComplete}
	pushEvent(t, b, events.KeyEventsAll, older)
	pushEvent(t, b, events.KeyEventsAll, newer)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	var got []events.StoredEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(newer.Timestamp) {
		t.Error("expected newest event first")
	}
}

func TestHandleEventsByType(t *testing.T) {
	b := newFakeBus()
	clk := clock.NewMock(time.Now())
	s := New(b, clk, testConfig())

	pushEvent(t, b, events.EventsByTypeKey(events.TypeFalseAlarm), events.StoredEvent{EventType: events.TypeFalseAlarm})

	req := httptest.NewRequest(http.MethodGet, "/api/events/false_alarm", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	var got []events.StoredEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
}

func TestHandleContainerStats_NotFound(t *testing.T) {
	s := New(newFakeBus(), clock.NewMock(time.Now()), testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/containers/missing", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleContainerStats_Found(t *testing.T) {
	b := newFakeBus()
	s := New(b, clock.NewMock(time.Now()), testConfig())

	cs := events.ContainerState{ContainerID: "web-1", Status: "running"}
	raw, _ := json.Marshal(cs)
	b.kv[events.ContainerKey("web-1")] = string(raw)

	req := httptest.NewRequest(http.MethodGet, "/api/containers/web-1", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got events.ContainerState
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ContainerID != "web-1" {
		t.Errorf("ContainerID = %q, want web-1", got.ContainerID)
	}
}

func TestHandleActiveContainers(t *testing.T) {
	b := newFakeBus()
	s := New(b, clock.NewMock(time.Now()), testConfig())

	b.kv[events.ContainerKey("web-1")] = "{}"
	b.kv[events.ContainerKey("web-2")] = "{}"

	req := httptest.NewRequest(http.MethodGet, "/api/containers/active", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	var ids []string
	if err := json.Unmarshal(rec.Body.Bytes(), &ids); err != nil {
		t.Fatal(err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "web-1" || ids[1] != "web-2" {
		t.Fatalf("ids = %v, want [web-1 web-2]", ids)
	}
}

func TestHandleRemediationStats_ComputesSuccessRate(t *testing.T) {
	b := newFakeBus()
	s := New(b, clock.NewMock(time.Now()), testConfig())

	key := events.EventsByTypeKey(events.TypeRemediationComplete)
	pushEvent(t, b, key, events.StoredEvent{Data: events.RemediationOutcome{Result: events.RemediationResult{Status: events.StatusSuccess}}})
	pushEvent(t, b, key, events.StoredEvent{Data: events.RemediationOutcome{Result: events.RemediationResult{Status: events.StatusFailed}}})
	pushEvent(t, b, key, events.StoredEvent{Data: events.RemediationOutcome{Result: events.RemediationResult{Status: events.StatusSuccess}}})

	req := httptest.NewRequest(http.MethodGet, "/api/remediation/stats", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	var got remediationStats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Total != 3 || got.Success != 2 || got.Failed != 1 {
		t.Fatalf("got %+v", got)
	}
	wantRate := 66.7
	if got.SuccessRate != wantRate {
		t.Errorf("SuccessRate = %v, want %v", got.SuccessRate, wantRate)
	}
}

func TestHandleFalseAlarmCount(t *testing.T) {
	b := newFakeBus()
	s := New(b, clock.NewMock(time.Now()), testConfig())

	key := events.EventsByTypeKey(events.TypeFalseAlarm)
	pushEvent(t, b, key, events.StoredEvent{EventType: events.TypeFalseAlarm})
	pushEvent(t, b, key, events.StoredEvent{EventType: events.TypeFalseAlarm})

	req := httptest.NewRequest(http.MethodGet, "/api/false-alarms/count", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	var got map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["count"] != 2 {
		t.Fatalf("count = %d, want 2", got["count"])
	}
}

func TestHandleMetricsSummary(t *testing.T) {
	b := newFakeBus()
	s := New(b, clock.NewMock(time.Now()), testConfig())

	b.kv[events.ContainerKey("web-1")] = "{}"
	pushEvent(t, b, events.EventsByTypeKey(events.TypeFalseAlarm), events.StoredEvent{})
	pushEvent(t, b, events.EventsByTypeKey(events.TypeRemediationComplete),
		events.StoredEvent{Data: events.RemediationOutcome{Result: events.RemediationResult{Status: events.StatusSuccess}}})

	req := httptest.NewRequest(http.MethodGet, "/api/metrics/summary", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)

	var got metricsSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ActiveContainers != 1 {
		t.Errorf("ActiveContainers = %d, want 1", got.ActiveContainers)
	}
	if got.FalseAlarmCount != 1 {
		t.Errorf("FalseAlarmCount = %d, want 1", got.FalseAlarmCount)
	}
	if got.Remediation.Total != 1 {
		t.Errorf("Remediation.Total = %d, want 1", got.Remediation.Total)
	}
}

func TestLimitParam_ClampsToMax(t *testing.T) {
	s := New(newFakeBus(), clock.NewMock(time.Now()), Config{Port: "0", MaxEvents: 10})
	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=9999", nil)
	if got := s.limitParam(req); got != 10 {
		t.Errorf("limitParam = %d, want 10", got)
	}
}
