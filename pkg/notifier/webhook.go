package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/jondmarien/hemostat/internal/breaker"
	hemoerrors "github.com/jondmarien/hemostat/pkg/shared/errors"
	"github.com/jondmarien/hemostat/pkg/shared/httpx"
)

const (
	webhookMaxAttempts = 3
	webhookBaseDelay   = time.Second
)

// statusError carries the webhook's HTTP status code so sendWithRetry can
// apply rate-limit-aware backoff (longer delay on 429).
type statusError struct {
	code int
	body string
}

func (e statusError) Error() string {
	return fmt.Sprintf("slack webhook error %d: %s", e.code, e.body)
}

// sendWebhook posts msg to webhookURL using the shared Slack HTTP client
// and routes the call through a per-agent circuit breaker.
func sendWebhook(ctx context.Context, br *breaker.Breaker, client *http.Client, webhookURL string, msg slack.WebhookMessage) error {
	_, err := br.Execute(ctx, func(ctx context.Context) (string, error) {
		return "", postOnce(ctx, client, webhookURL, msg)
	})
	return err
}

func postOnce(ctx context.Context, client *http.Client, webhookURL string, msg slack.WebhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return hemoerrors.FailedTo("marshal slack webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return hemoerrors.FailedTo("build slack webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return hemoerrors.FailedTo("send slack webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError{code: resp.StatusCode, body: string(respBody)}
	}
	return nil
}

// sendWithRetry ports _send_webhook_with_retry: up to 3 attempts,
// exponential backoff (1s * 2^attempt), a longer backoff (doubled) on a
// 429 rate-limit response, and no retry once attempts are exhausted.
func (n *Notifier) sendWithRetry(ctx context.Context, client *http.Client, msg slack.WebhookMessage) error {
	var lastErr error
	for attempt := 0; attempt < webhookMaxAttempts; attempt++ {
		err := sendWebhook(ctx, n.breaker, client, n.webhookURL, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == webhookMaxAttempts-1 {
			break
		}

		delay := webhookBaseDelay * time.Duration(1<<uint(attempt))
		if se, ok := asStatusError(err); ok && se.code == http.StatusTooManyRequests {
			delay *= 2
		}
		n.log.WithField("error", err.Error()).
			WithField("attempt", attempt+1).
			WithField("delay", delay.String()).
			Warn("slack webhook delivery failed, retrying")
		n.clock.Sleep(delay)
	}
	return lastErr
}

func asStatusError(err error) (statusError, bool) {
	for {
		if se, ok := err.(statusError); ok {
			return se, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return statusError{}, false
		}
		err = unwrapper.Unwrap()
		if err == nil {
			return statusError{}, false
		}
	}
}

// NewWebhookClient builds the *http.Client used for Slack delivery.
func NewWebhookClient() *http.Client {
	return httpx.NewClient(httpx.SlackClientConfig())
}
