package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"NewsPoster/internal/config"
	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

const defaultTimeout = 30 * time.Second

// New builds the language model named by cfg.Provider.
func New(ctx context.Context, cfg config.ModelConfig, timeout time.Duration) (ports.LanguageModel, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderOllama:
		return NewOpenAIClient(cfg, httpClient)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, httpClient)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, httpClient)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// apiFailure wraps a backend error as a generation error. Client errors other
// than rate limiting will not succeed on retry and are marked permanent.
func apiFailure(backend string, status int, err error) error {
	wrapped := fmt.Errorf("%s: %w: %w", backend, domain.ErrGeneration, err)
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return domain.Permanent(wrapped)
	}
	return wrapped
}

func emptyAnswer(backend string) error {
	return fmt.Errorf("%s: %w: empty response", backend, domain.ErrGeneration)
}

func safePrompt(prompt string) string {
	return strings.TrimSpace(prompt)
}
