// Package events defines the event envelope and every payload shape that
// crosses the message bus. Payloads are explicit structs, never
// map[string]any, so producers and consumers share a compile-time
// contract even though the wire format is JSON.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Agent identifies which HemoStat process published an event.
type Agent string

const (
	AgentObserver Agent = "observer"
	AgentDecider  Agent = "decider"
	AgentActuator Agent = "actuator"
	AgentScanner  Agent = "scanner"
)

// Type discriminates the payload shape carried by an envelope.
type Type string

const (
	TypeHealthAlert         Type = "health_alert"
	TypeRemediationNeeded   Type = "remediation_needed"
	TypeFalseAlarm          Type = "false_alarm"
	TypeRemediationComplete Type = "remediation_complete"
	TypeVulnerabilityAlert  Type = "alerts"
)

// Channel names for the bus topology.
const (
	ChannelHealthAlert       = "health_alert"
	ChannelRemediationNeeded = "remediation_needed"
	ChannelFalseAlarm        = "false_alarm"
	ChannelRemediationDone   = "remediation_complete"
	ChannelAlerts            = "alerts"
)

// Envelope wraps every payload published to the bus. CorrelationID ties
// an envelope back to the alert or request that produced it, so a
// remediation_complete event can be traced to the health_alert that
// triggered the chain, across process and channel boundaries.
type Envelope struct {
	CorrelationID string      `json:"correlation_id"`
	EventType     Type        `json:"event_type"`
	Timestamp     time.Time   `json:"timestamp"`
	Agent         Agent       `json:"agent"`
	Data          interface{} `json:"data"`
}

// NewEnvelope stamps data with a fresh correlation ID, the current UTC
// time, and the publishing agent's identity.
func NewEnvelope(eventType Type, agent Agent, data interface{}) Envelope {
	return NewCorrelatedEnvelope(eventType, agent, data, uuid.NewString())
}

// NewCorrelatedEnvelope is NewEnvelope with an explicit correlation ID,
// used when a downstream event (e.g. remediation_complete) should carry
// forward the ID of the health_alert or remediation_needed event that
// triggered it rather than minting a new one.
func NewCorrelatedEnvelope(eventType Type, agent Agent, data interface{}, correlationID string) Envelope {
	return Envelope{
		CorrelationID: correlationID,
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Agent:         agent,
		Data:          data,
	}
}

// HealthStatus mirrors the container health states the runtime reports.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStarting  HealthStatus = "starting"
	HealthUnknown   HealthStatus = "unknown"
)

// Severity ranks an anomaly's urgency.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyType names the kind of deviation Observer detected.
type AnomalyType string

const (
	AnomalyHighCPU           AnomalyType = "high_cpu"
	AnomalyHighMemory        AnomalyType = "high_memory"
	AnomalyUnhealthyStatus   AnomalyType = "unhealthy_status"
	AnomalyNonZeroExit       AnomalyType = "non_zero_exit"
	AnomalyExcessiveRestarts AnomalyType = "excessive_restarts"
)

// Anomaly is one deviation found during a single poll.
type Anomaly struct {
	Type     AnomalyType            `json:"type"`
	Severity Severity               `json:"severity"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Metrics is the derived resource snapshot for one container at one poll.
type Metrics struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsage   uint64  `json:"memory_usage"`
	MemoryLimit   uint64  `json:"memory_limit"`
	NetRx         uint64  `json:"net_rx"`
	NetTx         uint64  `json:"net_tx"`
	BlkioRead     uint64  `json:"blkio_read"`
	BlkioWrite    uint64  `json:"blkio_write"`
}

// HealthAlert is Observer's payload, published on health_alert.
type HealthAlert struct {
	ContainerID   string       `json:"container_id"`
	ContainerName string       `json:"container_name"`
	Image         string       `json:"image"`
	Status        string       `json:"status"`
	Metrics       Metrics      `json:"metrics"`
	HealthStatus  HealthStatus `json:"health_status"`
	ExitCode      int          `json:"exit_code"`
	RestartCount  int          `json:"restart_count"`
	Anomalies     []Anomaly    `json:"anomalies"`
}

// ActionType is the remediation action Decider selects.
type ActionType string

const (
	ActionRestart ActionType = "restart"
	ActionScaleUp ActionType = "scale_up"
	ActionCleanup ActionType = "cleanup"
	ActionExec    ActionType = "exec"
	ActionNone    ActionType = "none"
)

// AnalysisMethod records whether Decider used the LLM or the rule ladder.
type AnalysisMethod string

const (
	MethodAI        AnalysisMethod = "ai"
	MethodRuleBased AnalysisMethod = "rule_based"
)

// AnalysisResult is Decider's internal verdict, published as
// RemediationNeeded when it is not a false alarm, its action is not none
// and its confidence meets the threshold, and as FalseAlarm otherwise.
type AnalysisResult struct {
	ContainerID    string         `json:"container_id"`
	ContainerName  string         `json:"container_name"`
	Action         ActionType     `json:"action"`
	Reason         string         `json:"reason"`
	Confidence     float64        `json:"confidence"`
	IsFalseAlarm   bool           `json:"is_false_alarm"`
	AnalysisMethod AnalysisMethod `json:"analysis_method"`
}

// RemediationStatus is the outcome of an attempted remediation action.
type RemediationStatus string

const (
	StatusSuccess       RemediationStatus = "success"
	StatusFailed        RemediationStatus = "failed"
	StatusRejected      RemediationStatus = "rejected"
	StatusNotApplicable RemediationStatus = "not_applicable"
)

// Machine-readable discriminators for RemediationResult.Reason when
// Status is StatusRejected.
const (
	ReasonCooldownActive     = "cooldown_active"
	ReasonCircuitBreakerOpen = "circuit_breaker_open"
)

// RemediationResult is the nested result block of a RemediationOutcome.
// RemainingSeconds and RetryCount are only populated on a cooldown or
// circuit-breaker rejection respectively; both are zero otherwise.
type RemediationResult struct {
	Status           RemediationStatus `json:"status"`
	Details          string            `json:"details,omitempty"`
	Error            string            `json:"error,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	RemainingSeconds int               `json:"remaining_seconds,omitempty"`
	RetryCount       int               `json:"retry_count,omitempty"`
}

// RemediationOutcome is Actuator's payload, published on remediation_complete.
type RemediationOutcome struct {
	Container  string            `json:"container"`
	Action     ActionType        `json:"action"`
	DryRun     bool              `json:"dry_run"`
	Reason     string            `json:"reason"`
	Confidence float64           `json:"confidence"`
	Result     RemediationResult `json:"result"`
}

// VulnerabilitySeverity ranks a scanner finding.
type VulnerabilitySeverity string

const (
	VulnLow      VulnerabilitySeverity = "low"
	VulnMedium   VulnerabilitySeverity = "medium"
	VulnHigh     VulnerabilitySeverity = "high"
	VulnCritical VulnerabilitySeverity = "critical"
)

// VulnerabilityFinding is one detected CVE on a scanned image.
type VulnerabilityFinding struct {
	CVE      string                `json:"cve"`
	Severity VulnerabilitySeverity `json:"severity"`
	Package  string                `json:"package,omitempty"`
}

// VulnerabilitySummary is the Scanner's payload, published on alerts.
type VulnerabilitySummary struct {
	Image    string                 `json:"image"`
	Digest   string                 `json:"digest"`
	Findings []VulnerabilityFinding `json:"findings"`
	ScanTime time.Time              `json:"scan_time"`
}
