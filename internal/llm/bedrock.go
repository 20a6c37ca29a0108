package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	hemoerrors "github.com/jondmarien/hemostat/pkg/shared/errors"
)

type bedrockBackend struct {
	client  *bedrockruntime.Client
	modelID string
}

func newBedrockBackend(ctx context.Context, modelID string) (Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, hemoerrors.FailedTo("load AWS config for bedrock backend", err)
	}
	return &bedrockBackend{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// bedrockAnthropicRequest is the Anthropic-on-Bedrock message format.
// HemoStat only targets Claude models hosted on Bedrock, matching the
// model family used by the direct Anthropic backend.
type bedrockAnthropicRequest struct {
	AnthropicVersion string                    `json:"anthropic_version"`
	MaxTokens        int                       `json:"max_tokens"`
	System           string                    `json:"system"`
	Messages         []bedrockAnthropicMessage `json:"messages"`
}

type bedrockAnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (b *bedrockBackend) Invoke(ctx context.Context, system, user string) (string, error) {
	reqBody, err := json.Marshal(bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
		System:           system,
		Messages: []bedrockAnthropicMessage{
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", hemoerrors.FailedTo("marshal bedrock request", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &b.modelID,
		ContentType: strPtr("application/json"),
		Accept:      strPtr("application/json"),
		Body:        reqBody,
	})
	if err != nil {
		return "", hemoerrors.FailedTo("invoke bedrock model", err)
	}

	var resp bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", hemoerrors.FailedTo("decode bedrock response", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func strPtr(s string) *string { return &s }
