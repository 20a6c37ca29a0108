package decider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jondmarien/hemostat/internal/events"
)

const aiSystemPrompt = "You are an expert DevOps engineer analyzing container health issues."

const maxAIAttempts = 3

var codeFenceOpen = regexp.MustCompile("^```(?:json)?\\s*")
var codeFenceClose = regexp.MustCompile("\\s*```$")

// aiResponse is the JSON shape requested from the model. All five fields
// are required; a response missing any of them is treated as invalid and
// retried.
type aiResponse struct {
	RootCause    *string  `json:"root_cause"`
	Action       *string  `json:"action"`
	Reason       *string  `json:"reason"`
	Confidence   *float64 `json:"confidence"`
	IsFalseAlarm *bool    `json:"is_false_alarm"`
}

func (r aiResponse) complete() bool {
	return r.RootCause != nil && r.Action != nil && r.Reason != nil &&
		r.Confidence != nil && r.IsFalseAlarm != nil
}

// aiAnalyze invokes the configured LLM backend, retrying up to
// maxAIAttempts times on a malformed or incomplete response with
// 0.5*2^attempt backoff between tries. It returns nil, not an error,
// when analysis should fall back to the rule ladder: AI failure is an
// expected, non-fatal path.
func (d *Decider) aiAnalyze(ctx context.Context, alert events.HealthAlert, history []events.HealthAlert) *events.AnalysisResult {
	prompt := buildPrompt(alert, history)

	for attempt := 0; attempt < maxAIAttempts; attempt++ {
		raw, err := d.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return d.llm.Invoke(ctx, aiSystemPrompt, prompt)
		})
		if err != nil {
			if isServerError(err) {
				d.log.WithField("container_name", alert.ContainerName).WithField("error", err.Error()).
					Error("AI backend server error, falling back to rule-based analysis without retry")
				break
			}
			d.log.WithField("attempt", attempt+1).WithField("error", err.Error()).
				Warn("AI backend call failed")
			d.sleepBackoff(attempt)
			continue
		}

		resp, ok := extractJSON(raw)
		if !ok || !resp.complete() {
			d.log.WithField("container_name", alert.ContainerName).
				Warn("invalid AI response format, retrying")
			d.sleepBackoff(attempt)
			continue
		}

		if d.metrics != nil {
			d.metrics.AIRetriesTotal.Add(float64(attempt))
		}

		return &events.AnalysisResult{
			ContainerID:    alert.ContainerID,
			ContainerName:  alert.ContainerName,
			Action:         events.ActionType(*resp.Action),
			Reason:         *resp.Reason,
			Confidence:     *resp.Confidence,
			IsFalseAlarm:   *resp.IsFalseAlarm,
			AnalysisMethod: events.MethodAI,
		}
	}

	d.log.WithField("container_name", alert.ContainerName).
		Warn("AI analysis failed after all attempts; falling back to rule-based")
	return nil
}

func (d *Decider) sleepBackoff(attempt int) {
	d.clock.Sleep(time.Duration(500*(1<<uint(attempt))) * time.Millisecond)
}

// isServerError mirrors the TGI-specific fast-fail: a backend error whose
// message names an out-of-range value or a 424 status means the model
// server itself is in a bad state, so retrying immediately is pointless.
func isServerError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Value out of range") || strings.Contains(msg, "424")
}

func buildPrompt(alert events.HealthAlert, history []events.HealthAlert) string {
	anomaliesJSON := "None"
	if len(alert.Anomalies) > 0 {
		if b, err := json.MarshalIndent(alert.Anomalies, "", "  "); err == nil {
			anomaliesJSON = string(b)
		}
	}

	var historySummary strings.Builder
	if len(history) > 0 {
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		historySummary.WriteString(fmt.Sprintf("\n\nRecent alert history (%d alerts):\n", len(history)))
		for i, h := range recent {
			historySummary.WriteString(fmt.Sprintf(
				"  Alert %d: CPU=%.2f%%, Memory=%.2f%%, Anomalies=%d\n",
				i+1, h.Metrics.CPUPercent, h.Metrics.MemoryPercent, len(h.Anomalies)))
		}
	}

	return fmt.Sprintf(`You are an expert DevOps engineer analyzing container health issues.

Container: %s
Health Status: %s

Current Metrics:
- CPU: %.2f%%
- Memory: %.2f%%
- Exit Code: %d
- Restart Count: %d

Detected Anomalies (%d):
%s
%s

Respond with valid JSON only, no code fences or commentary. Provide your analysis in this format:
{
  "root_cause": "Brief description of the root cause",
  "action": "restart|scale_up|cleanup|none",
  "reason": "Explanation for the recommended action",
  "confidence": 0.0-1.0,
  "is_false_alarm": true|false
}

Be concise and focus on actionable insights.`,
		alert.ContainerName, alert.HealthStatus,
		alert.Metrics.CPUPercent, alert.Metrics.MemoryPercent,
		alert.ExitCode, alert.RestartCount,
		len(alert.Anomalies), anomaliesJSON, historySummary.String())
}

// extractJSON strips markdown code fences, then extracts the first
// complete brace-balanced JSON object from raw and decodes it into an
// aiResponse. Models occasionally wrap their JSON in commentary or code
// fences despite being asked not to.
func extractJSON(raw string) (aiResponse, bool) {
	s := strings.TrimSpace(raw)
	s = codeFenceOpen.ReplaceAllString(s, "")
	s = codeFenceClose.ReplaceAllString(s, "")

	start := strings.Index(s, "{")
	if start < 0 {
		return aiResponse{}, false
	}

	depth := 0
	end := -1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}
	if end <= start {
		return aiResponse{}, false
	}

	var resp aiResponse
	if err := json.Unmarshal([]byte(s[start:end]), &resp); err != nil {
		return aiResponse{}, false
	}
	return resp, true
}
