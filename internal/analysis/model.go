package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

const (
	modelPromptChars = 800
	modelMaxTokens   = 150
)

// Model asks a language model for a JSON verdict about the article.
type Model struct {
	model ports.LanguageModel
}

var _ ports.Analyzer = (*Model)(nil)

// NewModel wraps a language model client.
func NewModel(model ports.LanguageModel) *Model {
	return &Model{model: model}
}

// Analyze prompts the model and parses its JSON answer.
func (m *Model) Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error) {
	if m.model == nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: no model configured", domain.ErrAnalysis)
	}
	if strings.TrimSpace(article.Body) == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: empty article text", domain.ErrAnalysis)
	}

	answer, err := m.model.Generate(ctx, buildPrompt(article), modelMaxTokens)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %s: %w", domain.ErrAnalysis, m.model.Name(), err)
	}

	result, err := parseVerdict(answer)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %w", domain.ErrAnalysis, err)
	}
	return result, nil
}

func buildPrompt(article domain.Article) string {
	content := []rune(article.Body)
	if len(content) > modelPromptChars {
		content = content[:modelPromptChars]
	}
	category := article.Category
	if category == "" {
		category = "news"
	}
	return fmt.Sprintf(`Analyze this %s article briefly. Return only JSON:

Title: %s
Content: %s...

{"sentiment":"positive/negative/neutral","urgency":"high/medium/low","key_topics":["topic1","topic2"]}`,
		category, article.Title, string(content))
}

type verdict struct {
	Sentiment string          `json:"sentiment"`
	Urgency   json.RawMessage `json:"urgency"`
	KeyTopics []string        `json:"key_topics"`
	Topics    []string        `json:"topics"`
}

func parseVerdict(answer string) (domain.AnalysisResult, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return domain.AnalysisResult{}, fmt.Errorf("no JSON object in model answer")
	}

	var v verdict
	if err := json.Unmarshal([]byte(answer[start:end+1]), &v); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode model answer: %w", err)
	}

	sentiment, _ := domain.ParseSentiment(strings.ToLower(strings.TrimSpace(v.Sentiment)))

	topics := v.KeyTopics
	if len(topics) == 0 {
		topics = v.Topics
	}

	return domain.AnalysisResult{
		Sentiment: sentiment,
		Urgency:   parseUrgency(v.Urgency),
		Topics:    cleanTopics(topics, MaxTopics),
	}, nil
}

func parseUrgency(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return domain.DefaultUrgency
	}
	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		var score float64
		if err := json.Unmarshal(raw, &score); err != nil {
			return domain.DefaultUrgency
		}
		return clamp01(score)
	}
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high":
		return 0.9
	case "low":
		return 0.2
	case "medium":
		return domain.DefaultUrgency
	}
	if score, err := strconv.ParseFloat(label, 64); err == nil {
		return clamp01(score)
	}
	return domain.DefaultUrgency
}

func cleanTopics(topics []string, limit int) []string {
	seen := map[string]bool{}
	out := make([]string, 0, limit)
	for _, topic := range topics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		out = append(out, topic)
		if len(out) == limit {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
