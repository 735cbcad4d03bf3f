package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsPoster/internal/domain"
)

var fixedNow = time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLexicalIsDeterministic(t *testing.T) {
	t.Parallel()

	article := domain.Article{
		Title:       "Breaking: flood warning issued for river towns",
		Body:        "Residents were told to evacuate immediately as the flood warning spread. River levels rose overnight and the flood defences failed in two towns.",
		PublishedAt: fixedNow.Add(-2 * time.Hour),
	}
	analyzer := NewLexical(func() time.Time { return fixedNow })

	first, err := analyzer.Analyze(context.Background(), article)
	require.NoError(t, err)
	second, err := analyzer.Analyze(context.Background(), article)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.SentimentNegative, first.Sentiment)
	assert.Greater(t, first.Urgency, 0.7)
	assert.LessOrEqual(t, first.Urgency, 1.0)
	require.NotEmpty(t, first.Topics)
	assert.Equal(t, "flood warning", first.Topics[0])
	assert.LessOrEqual(t, len(first.Topics), MaxTopics)
}

func TestLexicalSentiment(t *testing.T) {
	t.Parallel()

	analyzer := NewLexical(func() time.Time { return fixedNow })
	cases := []struct {
		body string
		want domain.Sentiment
	}{
		{"The team celebrate a record win and growth in support.", domain.SentimentPositive},
		{"The crash caused damage and a loss for the company.", domain.SentimentNegative},
		{"The council met on Tuesday to discuss the budget.", domain.SentimentNeutral},
		{"The plan did not fail.", domain.SentimentPositive},
	}
	for _, tc := range cases {
		got, err := analyzer.Analyze(context.Background(), domain.Article{Body: tc.body})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Sentiment, tc.body)
	}
}

func TestLexicalUrgencyDecaysWithAge(t *testing.T) {
	t.Parallel()

	analyzer := NewLexical(func() time.Time { return fixedNow })
	body := "The committee published its annual report on parks."

	fresh, err := analyzer.Analyze(context.Background(), domain.Article{Body: body, PublishedAt: fixedNow.Add(-time.Hour)})
	require.NoError(t, err)
	old, err := analyzer.Analyze(context.Background(), domain.Article{Body: body, PublishedAt: fixedNow.Add(-30 * 24 * time.Hour)})
	require.NoError(t, err)

	assert.InDelta(t, 0.4, fresh.Urgency, 1e-9)
	assert.InDelta(t, 0.0, old.Urgency, 1e-9)
}

func TestLexicalRejectsEmptyBody(t *testing.T) {
	t.Parallel()

	_, err := NewLexical(nil).Analyze(context.Background(), domain.Article{Title: "Only a title", Body: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAnalysis)
}

func TestRankTopicsPrefersRepeatedBigrams(t *testing.T) {
	t.Parallel()

	title := tokenize("Climate summit opens")
	body := tokenize("Delegates at the climate summit argued. The climate summit ends Friday with pledges.")

	topics := rankTopics(title, body, 3)
	require.NotEmpty(t, topics)
	assert.Equal(t, "climate summit", topics[0])
	assert.NotContains(t, topics, "climate")
	assert.NotContains(t, topics, "summit")
}

type stubModel struct {
	answer string
	err    error
	prompt string
}

func (s *stubModel) Name() string { return "stub" }

func (s *stubModel) Generate(_ context.Context, prompt string, _ int) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func TestModelParsesVerdict(t *testing.T) {
	t.Parallel()

	model := &stubModel{answer: "Sure! ```json\n{\"sentiment\":\"Positive\",\"urgency\":\"high\",\"key_topics\":[\"Energy\",\"energy\",\"grid\"]}\n```"}
	result, err := NewModel(model).Analyze(context.Background(), domain.Article{Title: "Grid upgrade", Body: "The grid is being upgraded.", Category: "business"})

	require.NoError(t, err)
	assert.Equal(t, domain.SentimentPositive, result.Sentiment)
	assert.InDelta(t, 0.9, result.Urgency, 1e-9)
	assert.Equal(t, []string{"energy", "grid"}, result.Topics)
	assert.Contains(t, model.prompt, "business article")
}

func TestModelUrgencyForms(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		`{"urgency":"low"}`:    0.2,
		`{"urgency":"medium"}`: 0.5,
		`{"urgency":0.75}`:     0.75,
		`{"urgency":"0.3"}`:    0.3,
		`{"urgency":7}`:        1,
		`{"urgency":"soon"}`:   0.5,
		`{}`:                   0.5,
	}
	for answer, want := range cases {
		result, err := parseVerdict(answer)
		require.NoError(t, err, answer)
		assert.InDelta(t, want, result.Urgency, 1e-9, answer)
		assert.Equal(t, domain.SentimentNeutral, result.Sentiment, answer)
	}
}

func TestModelFailures(t *testing.T) {
	t.Parallel()

	article := domain.Article{Body: "text"}

	_, err := NewModel(&stubModel{answer: "no json here"}).Analyze(context.Background(), article)
	assert.ErrorIs(t, err, domain.ErrAnalysis)

	_, err = NewModel(&stubModel{err: fmt.Errorf("quota: %w", domain.ErrGeneration)}).Analyze(context.Background(), article)
	assert.ErrorIs(t, err, domain.ErrAnalysis)
	assert.ErrorIs(t, err, domain.ErrGeneration)

	_, err = NewModel(nil).Analyze(context.Background(), article)
	assert.ErrorIs(t, err, domain.ErrAnalysis)
}

type failingAnalyzer struct{ calls int }

func (f *failingAnalyzer) Analyze(context.Context, domain.Article) (domain.AnalysisResult, error) {
	f.calls++
	return domain.AnalysisResult{}, errors.New("boom")
}

func TestServiceFallsThroughToNextAnalyzer(t *testing.T) {
	t.Parallel()

	first := &failingAnalyzer{}
	service := NewService(quietLogger(), time.Second, first, NewLexical(func() time.Time { return fixedNow }))

	result := service.Analyze(context.Background(), domain.Article{Body: "A record win for the team."})
	assert.Equal(t, 1, first.calls)
	assert.False(t, result.Degraded)
	assert.Equal(t, domain.SentimentPositive, result.Sentiment)
}

func TestServiceDegradesToDefault(t *testing.T) {
	t.Parallel()

	service := NewService(quietLogger(), 0, NewLexical(nil))
	result := service.Analyze(context.Background(), domain.Article{URL: "https://example.com/a", Body: ""})

	assert.Equal(t, domain.DefaultAnalysis(), result)
	assert.Equal(t, domain.SentimentNeutral, result.Sentiment)
	assert.InDelta(t, 0.5, result.Urgency, 1e-9)
	assert.Empty(t, result.Topics)
}
