package ai

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Supported generation providers.
const (
	ProviderGemini       = "gemini"
	ProviderOllama       = "ollama"
	ProviderOpenAICompat = "openai-compat"
)

// GeneratorConfig selects and configures a TextGenerator backend.
type GeneratorConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// NewGenerator builds the TextGenerator for cfg.Provider. An empty provider
// selects Gemini.
func NewGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderGemini
	}
	switch provider {
	case ProviderGemini:
		return NewGeminiClient(cfg.APIKey, WithGeminiModel(cfg.Model), WithGeminiBaseURL(cfg.BaseURL))
	case ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model)
	case ProviderOpenAICompat:
		return NewOpenAICompatClient(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}
