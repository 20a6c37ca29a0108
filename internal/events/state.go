package events

import (
	"time"

	"github.com/google/uuid"
)

// Key prefixes for the bus KV namespace.
const (
	KeyPrefixContainer          = "state:container:"
	KeyPrefixAlertHistory       = "state:alert_history:"
	KeyPrefixRemediationHistory = "state:remediation_history:"
	KeyPrefixCircuitBreaker     = "state:circuit_breaker:"
	KeyPrefixEventsByType       = "events:"
	KeyEventsAll                = "events:all"
	KeyPrefixAudit              = "audit:"
	KeyPrefixScanState          = "state:scan:"
)

// TTLs for each keyed-state namespace.
const (
	TTLContainerState     = 5 * time.Minute
	TTLAlertHistory       = time.Hour
	TTLRemediationHistory = 2 * time.Hour
	TTLCircuitBreaker     = 2 * time.Hour
	TTLAudit              = 7 * 24 * time.Hour
	TTLScanState          = 24 * time.Hour
)

// ContainerKey builds the state:container:{id} key.
func ContainerKey(id string) string { return KeyPrefixContainer + id }

// AlertHistoryKey builds the state:alert_history:{name} key.
func AlertHistoryKey(name string) string { return KeyPrefixAlertHistory + name }

// RemediationHistoryKey builds the state:remediation_history:{name} key.
func RemediationHistoryKey(name string) string { return KeyPrefixRemediationHistory + name }

// CircuitBreakerKey builds the state:circuit_breaker:{name} key.
func CircuitBreakerKey(name string) string { return KeyPrefixCircuitBreaker + name }

// EventsByTypeKey builds the events:{type} key.
func EventsByTypeKey(t Type) string { return KeyPrefixEventsByType + string(t) }

// AuditKey builds the audit:{name} key.
func AuditKey(name string) string { return KeyPrefixAudit + name }

// ScanStateKey builds the state:scan:{digest} key the scanner stores its
// last report under, keyed by content digest rather than image tag so a
// retagged image doesn't mask a prior finding.
func ScanStateKey(digest string) string { return KeyPrefixScanState + digest }

// ContainerState is the read model's per-container snapshot, refreshed
// with a 5-minute TTL on every Observer poll.
type ContainerState struct {
	ContainerID   string       `json:"container_id"`
	ContainerName string       `json:"container_name"`
	Image         string       `json:"image"`
	Status        string       `json:"status"`
	Metrics       Metrics      `json:"metrics"`
	HealthStatus  HealthStatus `json:"health_status"`
	RestartCount  int          `json:"restart_count"`
	LastPolled    time.Time    `json:"last_polled"`
}

// RemediationHistory is the per-container remediation bookkeeping record
// used by Actuator's cooldown check.
type RemediationHistory struct {
	LastActionTimestamp time.Time         `json:"last_action_timestamp"`
	LastAction          ActionType        `json:"last_action"`
	LastResultStatus    RemediationStatus `json:"last_result_status"`
	RetryCount          int               `json:"retry_count"`
	LastRetryHour       string            `json:"last_retry_hour"`
}

// CircuitBreakerState is the per-container breaker record Actuator reads
// and updates before attempting a remediation action.
type CircuitBreakerState struct {
	IsOpen          bool      `json:"is_open"`
	FailureCount    int       `json:"failure_count"`
	OpenedTimestamp time.Time `json:"opened_timestamp"`
	RetryCount      int       `json:"retry_count"`
}

// StoredEvent is one row appended to events:{type} and events:all for
// dashboard consumption, by Notifier, for every remediation_complete and
// false_alarm event it handles.
type StoredEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Agent     Agent       `json:"agent"`
	EventType Type        `json:"event_type"`
	Data      interface{} `json:"data"`
}

// AuditEntry is one row appended to audit:{name} for every remediation
// attempt on a container, accepted or rejected. ID is a fresh row
// identifier independent of CorrelationID, which ties the entry back to
// the health_alert/remediation_needed chain that produced it.
type AuditEntry struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Container     string            `json:"container"`
	Action        ActionType        `json:"action"`
	Reason        string            `json:"reason"`
	Confidence    float64           `json:"confidence"`
	DryRun        bool              `json:"dry_run"`
	Result        RemediationResult `json:"result"`
}

// NewAuditEntry builds an AuditEntry, stamping a fresh row ID.
func NewAuditEntry(correlationID, container string, action ActionType, reason string, confidence float64, dryRun bool, result RemediationResult, at time.Time) AuditEntry {
	return AuditEntry{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Timestamp:     at,
		Container:     container,
		Action:        action,
		Reason:        reason,
		Confidence:    confidence,
		DryRun:        dryRun,
		Result:        result,
	}
}
