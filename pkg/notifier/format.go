package notifier

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/slack-go/slack"

	"github.com/jondmarien/hemostat/internal/events"
	"github.com/jondmarien/hemostat/pkg/shared/clock"
)

const footer = "HemoStat Alert Agent"

// formatRemediationNotification ports _format_remediation_notification:
// status-colored attachment with container/action/status fields plus
// optional reason, rejection reason, confidence, dry-run, and error rows.
func formatRemediationNotification(outcome events.RemediationOutcome, clk clock.Clock) slack.WebhookMessage {
	color, emoji, statusText := remediationStyle(outcome.Result.Status)

	fields := []slack.AttachmentField{
		{Title: "Container", Value: outcome.Container, Short: true},
		{Title: "Action", Value: string(outcome.Action), Short: true},
		{Title: "Status", Value: statusText, Short: true},
	}
	if outcome.Reason != "" {
		fields = append(fields, slack.AttachmentField{Title: "Reason", Value: outcome.Reason})
	}
	if outcome.Result.Reason != "" && outcome.Result.Status == events.StatusRejected {
		fields = append(fields, slack.AttachmentField{Title: "Rejection Reason", Value: outcome.Result.Reason})
	}
	if outcome.Confidence > 0 {
		fields = append(fields, slack.AttachmentField{
			Title: "Confidence", Value: fmt.Sprintf("%.1f%%", outcome.Confidence*100), Short: true,
		})
	}
	if outcome.DryRun {
		fields = append(fields, slack.AttachmentField{Title: "Dry Run", Value: "Yes", Short: true})
	}
	if outcome.Result.Error != "" && outcome.Result.Status == events.StatusFailed {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: outcome.Result.Error})
	}

	title := fmt.Sprintf("%s Container Remediation: %s", emoji, statusText)
	return slack.WebhookMessage{
		Attachments: []slack.Attachment{{
			Fallback: title,
			Color:    color,
			Title:    title,
			Fields:   fields,
			Footer:   footer,
			Ts:       json.Number(strconv.FormatInt(clk.Now().Unix(), 10)),
		}},
	}
}

// formatFalseAlarmNotification ports _format_false_alarm_notification.
func formatFalseAlarmNotification(result events.AnalysisResult, clk clock.Clock) slack.WebhookMessage {
	fields := []slack.AttachmentField{
		{Title: "Container", Value: result.ContainerName, Short: true},
		{Title: "Analysis Method", Value: string(result.AnalysisMethod), Short: true},
	}
	if result.Reason != "" {
		fields = append(fields, slack.AttachmentField{Title: "Reason", Value: result.Reason})
	}
	if result.Confidence > 0 {
		fields = append(fields, slack.AttachmentField{
			Title: "Confidence", Value: fmt.Sprintf("%.1f%%", result.Confidence*100), Short: true,
		})
	}

	const title = "⚠️ False Alarm Detected"
	return slack.WebhookMessage{
		Attachments: []slack.Attachment{{
			Fallback: title,
			Color:    "#ffcc00",
			Title:    title,
			Fields:   fields,
			Footer:   footer,
			Ts:       json.Number(strconv.FormatInt(clk.Now().Unix(), 10)),
		}},
	}
}

func remediationStyle(status events.RemediationStatus) (color, emoji, statusText string) {
	switch status {
	case events.StatusSuccess:
		return "#36a64f", "✅", "Success"
	case events.StatusFailed:
		return "#ff0000", "❌", "Failed"
	case events.StatusRejected:
		return "#ff9900", "⏸️", "Rejected"
	default:
		return "#cccccc", "ℹ️", "Not Applicable"
	}
}
