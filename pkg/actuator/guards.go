package actuator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jondmarien/hemostat/internal/events"
)

// checkCooldown reports whether enough time has elapsed since the last
// remediation attempt on container. No prior history, or a history entry
// without a timestamp, is always treated as cooldown-expired.
func (a *Actuator) checkCooldown(ctx context.Context, container string) bool {
	history, ok := a.loadRemediationHistory(ctx, container)
	if !ok || history.LastActionTimestamp.IsZero() {
		return true
	}
	return a.clock.Since(history.LastActionTimestamp) >= a.cooldown
}

// cooldownRemaining returns the seconds left in the cooldown window, 0 if
// none is active.
func (a *Actuator) cooldownRemaining(ctx context.Context, container string) int {
	history, ok := a.loadRemediationHistory(ctx, container)
	if !ok || history.LastActionTimestamp.IsZero() {
		return 0
	}
	remaining := a.cooldown - a.clock.Since(history.LastActionTimestamp)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// circuitBreakerRetryCount returns the current failure/retry counter for
// container's breaker, 0 if no breaker state is stored.
func (a *Actuator) circuitBreakerRetryCount(ctx context.Context, container string) int {
	cb, ok := a.loadCircuitBreaker(ctx, container)
	if !ok {
		return 0
	}
	return cb.RetryCount
}

// checkCircuitBreaker reports whether it is safe to proceed: true when no
// breaker state exists, the breaker is closed, or the rolling one-hour
// window since it opened has elapsed.
func (a *Actuator) checkCircuitBreaker(ctx context.Context, container string) bool {
	cb, ok := a.loadCircuitBreaker(ctx, container)
	if !ok {
		return true
	}
	if !cb.OpenedTimestamp.IsZero() && a.clock.Since(cb.OpenedTimestamp) >= time.Hour {
		return true
	}
	return !cb.IsOpen
}

func (a *Actuator) loadRemediationHistory(ctx context.Context, container string) (events.RemediationHistory, bool) {
	raw, err := a.bus.Get(ctx, events.RemediationHistoryKey(container))
	if err != nil {
		return events.RemediationHistory{}, false
	}
	var h events.RemediationHistory
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return events.RemediationHistory{}, false
	}
	return h, true
}

func (a *Actuator) loadCircuitBreaker(ctx context.Context, container string) (events.CircuitBreakerState, bool) {
	raw, err := a.bus.Get(ctx, events.CircuitBreakerKey(container))
	if err != nil {
		return events.CircuitBreakerState{}, false
	}
	var cb events.CircuitBreakerState
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		return events.CircuitBreakerState{}, false
	}
	return cb, true
}

// updateRemediationHistory records the outcome of an attempted action and
// advances the per-hour retry counter: a successful action resets it to
// zero, a failure increments it within the same clock hour or resets to
// one when the hour has rolled over.
func (a *Actuator) updateRemediationHistory(ctx context.Context, container string, action events.ActionType, status events.RemediationStatus) {
	history, _ := a.loadRemediationHistory(ctx, container)
	now := a.clock.Now().UTC()

	history.LastActionTimestamp = now
	history.LastAction = action
	history.LastResultStatus = status

	if status == events.StatusSuccess {
		history.RetryCount = 0
	} else {
		currentHour := now.Truncate(time.Hour).Format(time.RFC3339)
		if history.LastRetryHour == currentHour {
			history.RetryCount++
		} else {
			history.RetryCount = 1
		}
		history.LastRetryHour = currentHour
	}

	a.saveJSON(ctx, events.RemediationHistoryKey(container), history, events.TTLRemediationHistory)
}

// updateCircuitBreaker resets the per-container breaker on success,
// increments its failure count on failure, and opens it once the
// failure count reaches maxRetriesPerHour within the rolling window.
func (a *Actuator) updateCircuitBreaker(ctx context.Context, container string, success bool) {
	cb, _ := a.loadCircuitBreaker(ctx, container)
	now := a.clock.Now().UTC()

	if !cb.OpenedTimestamp.IsZero() && a.clock.Since(cb.OpenedTimestamp) >= time.Hour {
		cb = events.CircuitBreakerState{}
	}

	if success {
		cb.IsOpen = false
		cb.FailureCount = 0
		cb.RetryCount = 0
	} else {
		cb.FailureCount++
		cb.RetryCount = cb.FailureCount
		if cb.FailureCount >= a.maxRetriesPerHour {
			cb.IsOpen = true
			cb.OpenedTimestamp = now
			if a.metrics != nil {
				a.metrics.CircuitBreakerTrips.Inc()
			}
		}
	}

	a.saveJSON(ctx, events.CircuitBreakerKey(container), cb, events.TTLCircuitBreaker)
}

func (a *Actuator) saveJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		a.log.WithField("key", key).WithField("error", err.Error()).Error("failed to marshal state")
		return
	}
	if err := a.bus.Set(ctx, key, string(payload), ttl); err != nil {
		a.log.WithField("key", key).WithField("error", err.Error()).Error("failed to store state")
	}
}
