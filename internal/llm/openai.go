package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// openAIBackend calls the chat completions API. With a custom base URL it
// also serves OpenAI-compatible servers (vLLM, LM Studio, Ollama's /v1).
type openAIBackend struct {
	client *openai.Client
}

func newOpenAIBackend(apiKey, baseURL string) *openAIBackend {
	if apiKey == "" {
		// Compatible servers ignore the key but the client requires one.
		apiKey = "unused"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIBackend{client: openai.NewClientWithConfig(cfg)}
}

func (b *openAIBackend) complete(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
