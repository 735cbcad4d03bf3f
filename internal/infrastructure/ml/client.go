package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// Client talks to an external analysis service for sentiment, urgency and topics.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

type analyzeResponse struct {
	Sentiment string   `json:"sentiment"`
	Urgency   *float64 `json:"urgency"`
	Topics    []string `json:"topics"`
}

// Analyze sends the article for scoring and topic detection.
func (c *Client) Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error) {
	payload := analyzeRequest{
		Title:    article.Title,
		Content:  article.Body,
		Category: article.Category,
	}

	var resp analyzeResponse
	if err := c.post(ctx, "/analyze", payload, &resp); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %w", domain.ErrAnalysis, err)
	}

	sentiment, ok := domain.ParseSentiment(strings.ToLower(strings.TrimSpace(resp.Sentiment)))
	if !ok {
		return domain.AnalysisResult{}, fmt.Errorf("%w: unknown sentiment %q", domain.ErrAnalysis, resp.Sentiment)
	}
	urgency := domain.DefaultUrgency
	if resp.Urgency != nil {
		urgency = min(max(*resp.Urgency, 0), 1)
	}
	topics := make([]string, 0, len(resp.Topics))
	for _, topic := range resp.Topics {
		if topic = strings.ToLower(strings.TrimSpace(topic)); topic != "" {
			topics = append(topics, topic)
		}
	}

	return domain.AnalysisResult{Sentiment: sentiment, Urgency: urgency, Topics: topics}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
