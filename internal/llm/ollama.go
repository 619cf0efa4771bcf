package llm

import "strings"

// ollamaAPIKey is sent to Ollama's OpenAI-compatible endpoint, which ignores it.
const ollamaAPIKey = "ollama"

// newOllamaBackend talks to Ollama through its OpenAI-compatible /v1 API.
func newOllamaBackend(baseURL string) *openAIBackend {
	return newOpenAIBackend(ollamaAPIKey, ollamaCompatURL(baseURL))
}

// ollamaCompatURL turns an Ollama server address into the base URL of its
// OpenAI-compatible API. Addresses already ending in /v1 are kept.
func ollamaCompatURL(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	u := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(u, "/v1") {
		return u
	}
	return u + "/v1"
}
