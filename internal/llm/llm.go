// Package llm provides the text-generation capability used by conflict
// detection. Callers describe a single completion with GenerateRequest and
// always receive a GenerateResult; transport, provider, and timeout failures
// are reported through Success=false rather than returned errors.
package llm

import (
	"context"
	"time"
)

// Provider names accepted in Selection.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// ProviderConfig carries the credentials and endpoint for one provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Selection is a resolved provider/model pair. A nil *Selection means no
// oracle is configured.
type Selection struct {
	Provider       string
	Model          string
	ProviderConfig ProviderConfig
}

// GenerateRequest describes one completion call.
type GenerateRequest struct {
	Provider       string
	ProviderConfig ProviderConfig
	Model          string
	Prompt         string
	Temperature    float32
	MaxTokens      int
	Context        string // Caller label for logs and spans, e.g. "fact_check_conflicts".
}

// GenerateResult is the envelope returned for every completion call.
type GenerateResult struct {
	Success bool
	Text    string
	Error   string
}

// Generator produces text from a prompt. Implementations must be safe for
// concurrent use and must honor ctx cancellation.
type Generator interface {
	GenerateText(ctx context.Context, req GenerateRequest) GenerateResult
}

// backend is a single provider's completion call.
type backend interface {
	complete(ctx context.Context, req GenerateRequest) (string, error)
}

func failure(err error) GenerateResult {
	return GenerateResult{Success: false, Error: err.Error()}
}
