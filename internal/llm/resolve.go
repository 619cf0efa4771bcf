package llm

import (
	"github.com/ashita-ai/kioku/internal/config"
)

// Default models per provider, used when KIOKU_LLM_MODEL is empty.
// Small, cheap models are sufficient: the task is classification over a
// short numbered list.
var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderGemini:    "gemini-1.5-flash",
	ProviderOllama:    "qwen2.5:3b",
}

const defaultOllamaURL = "http://localhost:11434"

// Resolve maps configuration to a provider/model selection. It returns nil
// when no oracle is configured: provider "none", an explicit provider that
// lacks credentials, or "auto" with nothing available.
//
// Auto mode prefers hosted providers with keys (anthropic, openai, gemini)
// and falls back to Ollama only when OLLAMA_URL is set explicitly.
func Resolve(cfg config.LLMConfig) *Selection {
	provider := cfg.Provider
	if provider == "" || provider == "auto" {
		switch {
		case cfg.AnthropicAPIKey != "":
			provider = ProviderAnthropic
		case cfg.OpenAIAPIKey != "":
			provider = ProviderOpenAI
		case cfg.GeminiAPIKey != "":
			provider = ProviderGemini
		case cfg.OllamaURL != "":
			provider = ProviderOllama
		default:
			return nil
		}
	}

	pc := ProviderConfig{Timeout: cfg.Timeout}
	switch provider {
	case ProviderOpenAI:
		pc.APIKey = cfg.OpenAIAPIKey
		pc.BaseURL = cfg.BaseURL
		// OpenAI-compatible servers behind KIOKU_LLM_BASE_URL may not need a key.
		if pc.APIKey == "" && pc.BaseURL == "" {
			return nil
		}
	case ProviderAnthropic:
		pc.APIKey = cfg.AnthropicAPIKey
		pc.BaseURL = cfg.BaseURL
		if pc.APIKey == "" {
			return nil
		}
	case ProviderGemini:
		pc.APIKey = cfg.GeminiAPIKey
		if pc.APIKey == "" {
			return nil
		}
	case ProviderOllama:
		pc.BaseURL = cfg.OllamaURL
		if pc.BaseURL == "" {
			pc.BaseURL = defaultOllamaURL
		}
	default:
		return nil
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[provider]
	}
	if model == "" {
		return nil
	}
	return &Selection{Provider: provider, Model: model, ProviderConfig: pc}
}
