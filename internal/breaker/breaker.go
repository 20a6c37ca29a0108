// Package breaker wraps transport calls (LLM invocation, Slack webhook
// delivery) in an in-memory circuit breaker. This is distinct from the
// Actuator's own KV-persisted per-container remediation breaker
// (internal/events.CircuitBreakerState): that one is domain state shared
// across Actuator instances and surfaced to the read model; this one is a
// process-local guard against hammering a failing external dependency.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	hemoerrors "github.com/jondmarien/hemostat/pkg/shared/errors"
)

// Breaker wraps one external dependency (one LLM provider, one Slack
// webhook) with trip-on-failure-ratio behavior.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[string]
}

// New builds a Breaker named name that opens after failureRatio of the
// last requestVolumeThreshold-or-more calls fail within a rolling
// interval, and stays open for timeout before allowing a trial request.
func New(name string, failureRatio float64, requestVolumeThreshold uint32, interval, timeout time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:     name,
		Interval: interval,
		Timeout:  timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < requestVolumeThreshold {
				return false
			}
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRate >= failureRatio
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[string](settings)}
}

// NewForLLM builds a Breaker tuned for AI backend calls: trip after 50%
// of at least 5 calls fail in a one-minute window, stay open 30 seconds.
func NewForLLM(name string) *Breaker {
	return New(name, 0.5, 5, time.Minute, 30*time.Second)
}

// NewForWebhook builds a Breaker tuned for webhook delivery: trip after
// 60% of at least 3 calls fail in a one-minute window, stay open a minute.
func NewForWebhook(name string) *Breaker {
	return New(name, 0.6, 3, time.Minute, time.Minute)
}

// Execute runs fn through the breaker, translating gobreaker's own
// ErrOpenState/ErrTooManyRequests into an OperationError so callers don't
// need to import gobreaker themselves.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	result, err := b.cb.Execute(func() (string, error) {
		return fn(ctx)
	})
	if err != nil {
		return "", hemoerrors.FailedTo("execute call through circuit breaker", err)
	}
	return result, nil
}

// State reports the breaker's current state for health/metrics reporting.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
