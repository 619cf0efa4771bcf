package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

type anthropicBackend struct {
	client *anthropic.Client
}

func newAnthropicBackend(apiKey, baseURL string) *anthropicBackend {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &anthropicBackend{client: anthropic.NewClient(apiKey, opts...)}
}

func (b *anthropicBackend) complete(ctx context.Context, req GenerateRequest) (string, error) {
	temperature := req.Temperature
	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(req.Model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(req.Prompt),
				},
			},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == anthropic.MessagesContentTypeText && c.Text != nil {
			sb.WriteString(*c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: no text content in response")
	}
	return sb.String(), nil
}
