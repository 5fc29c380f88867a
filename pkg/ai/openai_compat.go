package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatClient calls an OpenAI-compatible /chat/completions endpoint
// such as vLLM, LiteLLM or OpenRouter.
type OpenAICompatClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatClient builds a client. baseURL includes the version prefix,
// e.g. "http://localhost:8000/v1"; apiKey may be empty for local servers.
func NewOpenAICompatClient(baseURL, apiKey, model string) (*OpenAICompatClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("openai-compat base url required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("openai-compat generation model required")
	}
	return &OpenAICompatClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// GenerateText implements TextGenerator. The first choice is returned trimmed.
func (c *OpenAICompatClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	reqBody := completionRequest{
		Model:    c.model,
		Messages: chatMessages(systemPrompt, userPrompt),
	}
	var resp completionResponse
	if err := postJSON(ctx, c.httpClient, "openai-compat", c.baseURL+"/chat/completions", header, reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from openai-compat api")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response from openai-compat api")
	}
	return text, nil
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
