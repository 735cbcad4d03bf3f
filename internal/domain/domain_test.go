package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"HTTP://WWW.Example.com:80/World/../News/?utm_source=x&b=2&a=1#frag": "https://www.example.com/News?a=1&b=2",
		"https://example.com":                           "https://example.com/",
		"https://example.com:8443/a/":                   "https://example.com:8443/a",
		"https://www.theguardian.com/world/x?CMP=share": "https://www.theguardian.com/world/x",
		"  Not A URL ":                                  "not a url",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeURL(in), in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cafe society", NormalizeTitle("  Café \t Society "))
	assert.Equal(t, "", NormalizeTitle("   "))
}

func TestFingerprintIsStableAcrossSpellings(t *testing.T) {
	t.Parallel()

	a := NewFingerprint("https://x.com/a?utm_source=feed", "Café News")
	b := NewFingerprint("http://X.com/a/", "  cafe   news")
	assert.Equal(t, a, b)
	assert.Len(t, string(a), 64)

	assert.NotEqual(t, a, NewFingerprint("https://x.com/b", "Café News"))
	assert.NotEqual(t, a, NewFingerprint("https://x.com/a", "Other"))
	assert.Equal(t, URLFingerprint("https://x.com/a"), NewFingerprint("https://x.com/a", ""))
}

func TestNewArticle(t *testing.T) {
	t.Parallel()

	published := time.Date(2025, 11, 8, 10, 30, 0, 0, time.UTC)
	article := NewArticle("https://x.com/a", "world", ArticleFields{
		Title:       "Title",
		Body:        "one two\tthree\n four ",
		PublishedAt: published,
	})
	assert.Equal(t, "world", article.Category)
	assert.Equal(t, 4, article.WordCount)
	assert.Equal(t, published, article.PublishedAt)
	assert.Equal(t, NewFingerprint("https://x.com/a", "Title"), article.Fingerprint)

	overridden := NewArticle("https://x.com/a", "world", ArticleFields{Title: "Title", Category: "science"})
	assert.Equal(t, "science", overridden.Category)
	assert.Zero(t, overridden.WordCount)
}

func TestParseSentiment(t *testing.T) {
	t.Parallel()

	s, ok := ParseSentiment("negative")
	assert.True(t, ok)
	assert.Equal(t, SentimentNegative, s)

	s, ok = ParseSentiment("furious")
	assert.False(t, ok)
	assert.Equal(t, SentimentNeutral, s)

	assert.True(t, DefaultAnalysis().Degraded)
	assert.Equal(t, DefaultUrgency, DefaultAnalysis().Urgency)
}

func TestRenderPost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "body #a #b", RenderPost("  body ", []string{"#a", "#b"}))
	assert.Equal(t, "#a", RenderPost("", []string{"#a"}))
	assert.Equal(t, "body", RenderPost("body", nil))

	post := CandidatePost{Body: "héllo", Tags: []string{"#é"}}
	assert.Equal(t, "héllo #é", post.Render())
	assert.Equal(t, 8, post.RenderedLength())
}

func TestPostStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, PostPending.Terminal())
	assert.False(t, PostStatus("").Terminal())
	for _, s := range []PostStatus{PostPosted, PostSkipped, PostFailed} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestRunStatsResult(t *testing.T) {
	t.Parallel()

	var stats RunStats
	assert.Equal(t, ResultEmpty, stats.Result())

	stats.Failure(errors.New("boom"))
	assert.Equal(t, ResultFailure, stats.Result())

	stats.Success()
	stats.Skip(nil)
	assert.Equal(t, ResultPartial, stats.Result())
	assert.Equal(t, 3, stats.Attempted)
	assert.Equal(t, []string{"boom"}, stats.Errors)

	ok := RunStats{}
	ok.Success()
	assert.Equal(t, ResultSuccess, ok.Result())
}

func TestRunStatsSamplesAreBounded(t *testing.T) {
	t.Parallel()

	var a, b RunStats
	for i := 0; i < MaxErrorSamples+2; i++ {
		a.Failure(fmt.Errorf("a%d", i))
	}
	require.Len(t, a.Errors, MaxErrorSamples)
	assert.Equal(t, "a0", a.Errors[0])

	b.Failure(errors.New("b0"))
	b.Merge(a)
	assert.Equal(t, MaxErrorSamples+3, b.Attempted)
	assert.Equal(t, MaxErrorSamples+3, b.Failed)
	require.Len(t, b.Errors, MaxErrorSamples)
	assert.Equal(t, "b0", b.Errors[0])
}

func TestRunResultAndDuration(t *testing.T) {
	t.Parallel()

	run := NewRun(StageCrawl)
	require.NotEmpty(t, run.ID)
	assert.Zero(t, run.Duration())

	run.Stats.Success()
	run.Finish()
	assert.GreaterOrEqual(t, run.Duration(), time.Duration(0))
	assert.Equal(t, ResultSuccess, run.Result())

	run.Fatal = "authentication error"
	assert.Equal(t, ResultFailure, run.Result())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeOK},
		{"network", fmt.Errorf("fetch: %w", ErrNetwork), OutcomeRetryable},
		{"generation", fmt.Errorf("model: %w", ErrGeneration), OutcomeRetryable},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), OutcomeRetryable},
		{"permanent network", Permanent(fmt.Errorf("404: %w", ErrNetwork)), OutcomeFatal},
		{"canceled", context.Canceled, OutcomeFatal},
		{"extraction", ErrExtraction, OutcomeFatal},
		{"auth", ErrAuth, OutcomeFatal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), tc.name)
	}

	assert.NoError(t, Permanent(nil))
	assert.ErrorIs(t, Permanent(fmt.Errorf("x: %w", ErrAuth)), ErrAuth)
	assert.Equal(t, "retryable", OutcomeRetryable.String())
}
