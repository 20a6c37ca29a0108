package llm

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	hemoerrors "github.com/jondmarien/hemostat/pkg/shared/errors"
)

type anthropicBackend struct {
	client anthropic.Client
	model  anthropic.Model
}

func newAnthropicBackend(modelID string) (Backend, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, hemoerrors.FailedTo("initialize anthropic backend", errMissingCredentials{provider: "ANTHROPIC_API_KEY"})
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicBackend{client: client, model: anthropic.Model(modelID)}, nil
}

func (b *anthropicBackend) Invoke(ctx context.Context, system, user string) (string, error) {
	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", hemoerrors.FailedTo("invoke anthropic model", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

type errMissingCredentials struct {
	provider string
}

func (e errMissingCredentials) Error() string {
	return e.provider + " not set"
}
