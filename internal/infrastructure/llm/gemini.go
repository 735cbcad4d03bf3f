package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"NewsPoster/internal/config"
	"NewsPoster/internal/ports"
)

// GeminiClient implements ports.LanguageModel with the Gemini API.
type GeminiClient struct {
	client       *genai.Client
	name         string
	model        string
	systemPrompt string
	temperature  float32
}

var _ ports.LanguageModel = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, cfg config.ModelConfig, httpClient *http.Client) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:       client,
		name:         config.ProviderGemini + ":" + cfg.Model,
		model:        cfg.Model,
		systemPrompt: safePrompt(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
	}, nil
}

// Name identifies the backend in logs.
func (c *GeminiClient) Name() string {
	return c.name
}

// Generate asks the model for a plain-text completion.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if c.temperature > 0 {
		temperature := c.temperature
		genCfg.Temperature = &temperature
	}
	if c.systemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: c.systemPrompt}},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", apiFailure(c.name, geminiStatus(err), err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", emptyAnswer(c.name)
	}
	return answer, nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
