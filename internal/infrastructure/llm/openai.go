package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"NewsPoster/internal/config"
	"NewsPoster/internal/ports"
)

// OpenAIClient implements ports.LanguageModel against OpenAI-compatible chat
// APIs, including a local Ollama server through its /v1 endpoint.
type OpenAIClient struct {
	client       *openai.Client
	name         string
	model        string
	systemPrompt string
	temperature  float32
}

var _ ports.LanguageModel = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.ModelConfig, httpClient *http.Client) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai client misconfigured: model is required")
	}
	key := cfg.APIKey
	if cfg.Provider == config.ProviderOllama && key == "" {
		key = "ollama"
	}
	if key == "" {
		return nil, fmt.Errorf("openai client misconfigured: api key is required")
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	name := cfg.Provider
	if name == "" {
		name = config.ProviderOpenAI
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         name + ":" + cfg.Model,
		model:        cfg.Model,
		systemPrompt: safePrompt(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
	}, nil
}

// Name identifies the backend in logs.
func (c *OpenAIClient) Name() string {
	return c.name
}

// Generate sends prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", apiFailure(c.name, openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", emptyAnswer(c.name)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", emptyAnswer(c.name)
	}
	return answer, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
