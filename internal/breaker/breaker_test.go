package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_ClosedPassesThroughSuccess(t *testing.T) {
	b := New("test", 0.5, 2, time.Minute, time.Second)
	got, err := b.Execute(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if got != "ok" {
		t.Errorf("Execute() = %q, want %q", got, "ok")
	}
	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed", b.State())
	}
}

func TestBreaker_OpensAfterFailureRatioExceeded(t *testing.T) {
	b := New("test", 0.5, 2, time.Minute, time.Minute)
	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	for i := 0; i < 2; i++ {
		if _, err := b.Execute(context.Background(), failing); err == nil {
			t.Fatalf("Execute() call %d error = nil, want error", i)
		}
	}

	if b.State() != "open" {
		t.Fatalf("State() = %q, want open after failure threshold reached", b.State())
	}

	_, err := b.Execute(context.Background(), func(ctx context.Context) (string, error) {
		t.Fatal("fn should not run while breaker is open")
		return "", nil
	})
	if err == nil {
		t.Error("Execute() while open error = nil, want error")
	}
}

func TestBreaker_BelowVolumeThresholdNeverTrips(t *testing.T) {
	b := New("test", 0.5, 10, time.Minute, time.Minute)
	failing := func(ctx context.Context) (string, error) { return "", errors.New("boom") }

	for i := 0; i < 3; i++ {
		b.Execute(context.Background(), failing)
	}

	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed below request volume threshold", b.State())
	}
}

func TestNewForLLM_DefaultsAreClosed(t *testing.T) {
	b := NewForLLM("anthropic")
	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed on construction", b.State())
	}
}

func TestNewForWebhook_DefaultsAreClosed(t *testing.T) {
	b := NewForWebhook("slack")
	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed on construction", b.State())
	}
}
