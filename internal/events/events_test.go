package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEnvelope_StampsAgentAndType(t *testing.T) {
	alert := HealthAlert{ContainerID: "abc123", ContainerName: "web-1"}
	env := NewEnvelope(TypeHealthAlert, AgentObserver, alert)

	if env.EventType != TypeHealthAlert {
		t.Errorf("EventType = %v, want %v", env.EventType, TypeHealthAlert)
	}
	if env.Agent != AgentObserver {
		t.Errorf("Agent = %v, want %v", env.Agent, AgentObserver)
	}
	if env.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp should be UTC, got location %v", env.Timestamp.Location())
	}
	if time.Since(env.Timestamp) > time.Second {
		t.Errorf("Timestamp should be close to now, got %v", env.Timestamp)
	}
	if env.CorrelationID == "" {
		t.Error("CorrelationID should be stamped with a fresh ID")
	}

	env2 := NewEnvelope(TypeHealthAlert, AgentObserver, alert)
	if env2.CorrelationID == env.CorrelationID {
		t.Error("each NewEnvelope call should mint a distinct correlation ID")
	}
}

func TestNewCorrelatedEnvelope_CarriesGivenID(t *testing.T) {
	env := NewCorrelatedEnvelope(TypeRemediationComplete, AgentActuator, nil, "corr-123")
	if env.CorrelationID != "corr-123" {
		t.Errorf("CorrelationID = %q, want %q", env.CorrelationID, "corr-123")
	}
}

func TestEnvelope_RoundTripsThroughJSON(t *testing.T) {
	outcome := RemediationOutcome{
		Container:  "web-1",
		Action:     ActionRestart,
		DryRun:     false,
		Reason:     "high cpu",
		Confidence: 0.92,
		Result:     RemediationResult{Status: StatusSuccess},
	}
	env := NewEnvelope(TypeRemediationComplete, AgentActuator, outcome)

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded struct {
		EventType Type            `json:"event_type"`
		Agent     Agent           `json:"agent"`
		Data      RemediationOutcome `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.EventType != TypeRemediationComplete {
		t.Errorf("decoded EventType = %v, want %v", decoded.EventType, TypeRemediationComplete)
	}
	if decoded.Data.Container != "web-1" || decoded.Data.Action != ActionRestart {
		t.Errorf("decoded Data = %+v", decoded.Data)
	}
}

func TestKeyBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"container key", ContainerKey("web-1"), "state:container:web-1"},
		{"alert history key", AlertHistoryKey("web-1"), "state:alert_history:web-1"},
		{"remediation history key", RemediationHistoryKey("web-1"), "state:remediation_history:web-1"},
		{"circuit breaker key", CircuitBreakerKey("web-1"), "state:circuit_breaker:web-1"},
		{"events by type key", EventsByTypeKey(TypeHealthAlert), "events:health_alert"},
		{"audit key", AuditKey("web-1"), "audit:web-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTTLConstants(t *testing.T) {
	if TTLContainerState != 5*time.Minute {
		t.Errorf("TTLContainerState = %v, want 5m", TTLContainerState)
	}
	if TTLAlertHistory != time.Hour {
		t.Errorf("TTLAlertHistory = %v, want 1h", TTLAlertHistory)
	}
	if TTLRemediationHistory != 2*time.Hour {
		t.Errorf("TTLRemediationHistory = %v, want 2h", TTLRemediationHistory)
	}
	if TTLCircuitBreaker != 2*time.Hour {
		t.Errorf("TTLCircuitBreaker = %v, want 2h", TTLCircuitBreaker)
	}
	if TTLAudit != 7*24*time.Hour {
		t.Errorf("TTLAudit = %v, want 168h", TTLAudit)
	}
}
