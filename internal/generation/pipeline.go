// Package generation turns analyzed articles into candidate posts using a body
// backend and an independent tag backend.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
	"NewsPoster/internal/retry"
)

const articleExcerptChars = 1000

// Config holds the operational limits of a generation run.
type Config struct {
	PlatformLimit int
	MinTags       int
	MaxTags       int
	BodyPolicy    retry.Policy
	BodyMaxTokens int
	TagMaxTokens  int
	// CallTimeout bounds each backend request.
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PlatformLimit <= 0 {
		c.PlatformLimit = 280
	}
	if c.MinTags <= 0 {
		c.MinTags = 3
	}
	if c.MaxTags < c.MinTags {
		c.MaxTags = c.MinTags + 2
	}
	if c.BodyPolicy.MaxAttempts <= 0 {
		c.BodyPolicy = retry.LinearBackoff(3, time.Second)
	}
	if c.BodyMaxTokens <= 0 {
		c.BodyMaxTokens = 150
	}
	if c.TagMaxTokens <= 0 {
		c.TagMaxTokens = 60
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// Pipeline runs the body stage then the tag stage for every article, one at a
// time. Backends are never called concurrently.
type Pipeline struct {
	cfg    Config
	body   ports.LanguageModel
	tags   ports.LanguageModel
	logger *slog.Logger
}

// NewPipeline requires a body backend; a nil tag backend always uses fallback tags.
func NewPipeline(cfg Config, body, tags ports.LanguageModel, logger *slog.Logger) (*Pipeline, error) {
	if body == nil {
		return nil, errors.New("generation: body backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg.withDefaults(),
		body:   body,
		tags:   tags,
		logger: logger.With("component", "generation"),
	}, nil
}

// Run generates posts, most urgent articles first. Cancellation is checked
// between articles.
func (p *Pipeline) Run(ctx context.Context, articles []domain.AnalyzedArticle) domain.GenerationRun {
	run := domain.GenerationRun{Run: domain.NewRun(domain.StageGenerate), Posts: []domain.CandidatePost{}}
	logger := p.logger.With("run_id", run.ID)
	logger.Info("generation started", "articles", len(articles), "body_backend", p.body.Name())

	ordered := append([]domain.AnalyzedArticle(nil), articles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Analysis.Urgency > ordered[j].Analysis.Urgency
	})

	bodies := map[string]bool{}
	for _, item := range ordered {
		if err := ctx.Err(); err != nil {
			logger.Warn("generation cancelled", "error", err)
			break
		}

		post, err := p.Generate(ctx, item)
		if err != nil {
			logger.Warn("post generation failed", "url", item.Article.URL, "error", err)
			run.Stats.Failure(err)
			continue
		}

		key := normalizedBody(post.Body)
		if bodies[key] {
			logger.Info("near-duplicate post dropped", "url", item.Article.URL)
			run.Stats.Skip(nil)
			continue
		}
		bodies[key] = true

		run.Posts = append(run.Posts, post)
		run.Stats.Success()
	}

	run.Finish()
	logger.Info("generation finished",
		"attempted", run.Stats.Attempted,
		"succeeded", run.Stats.Succeeded,
		"failed", run.Stats.Failed,
		"skipped", run.Stats.Skipped)
	return run
}

// Generate produces one candidate post. Only a body stage failure is an error.
func (p *Pipeline) Generate(ctx context.Context, item domain.AnalyzedArticle) (domain.CandidatePost, error) {
	body, err := p.generateBody(ctx, item)
	if err != nil {
		return domain.CandidatePost{}, err
	}

	tags := p.generateTags(ctx, item, body)
	body, tags = Compose(body, tags, p.cfg.PlatformLimit)
	if body == "" {
		return domain.CandidatePost{}, fmt.Errorf("%w: no room for body in %d characters", domain.ErrGeneration, p.cfg.PlatformLimit)
	}

	return domain.CandidatePost{
		ArticleURL:   item.Article.URL,
		Fingerprint:  item.Article.Fingerprint,
		Body:         body,
		Tags:         tags,
		BodyWithTags: domain.RenderPost(body, tags),
	}, nil
}

func (p *Pipeline) generateBody(ctx context.Context, item domain.AnalyzedArticle) (string, error) {
	prompt := p.bodyPrompt(item)
	policy := p.cfg.BodyPolicy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.logger.Debug("body generation retry", "url", item.Article.URL, "attempt", attempt, "delay", delay, "error", err)
	}

	var body string
	_, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()

		answer, err := p.body.Generate(callCtx, prompt, p.cfg.BodyMaxTokens)
		if err != nil {
			if !errors.Is(err, domain.ErrGeneration) {
				err = fmt.Errorf("%w: %w", domain.ErrGeneration, err)
			}
			return err
		}
		body = cleanBody(answer)
		if body == "" {
			return fmt.Errorf("%w: empty body from %s", domain.ErrGeneration, p.body.Name())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate body: %w", err)
	}
	return body, nil
}

func (p *Pipeline) generateTags(ctx context.Context, item domain.AnalyzedArticle, body string) []string {
	fallback := FallbackTags(item.Analysis.Topics, item.Article.Category, p.cfg.MinTags, p.cfg.MaxTags)
	if p.tags == nil {
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	answer, err := p.tags.Generate(callCtx, p.tagPrompt(item, body), p.cfg.TagMaxTokens)
	if err != nil {
		p.logger.Warn("tag generation failed, using fallback tags", "url", item.Article.URL, "error", err)
		return fallback
	}

	tags := ParseTags(answer, p.cfg.MaxTags)
	if len(tags) == 0 {
		p.logger.Warn("tag backend returned no tags, using fallback tags", "url", item.Article.URL)
		return fallback
	}
	if len(tags) < p.cfg.MinTags {
		tags = uniqueTags(append(tags, fallback...), p.cfg.MaxTags)
	}
	return tags
}

func (p *Pipeline) bodyPrompt(item domain.AnalyzedArticle) string {
	excerpt := []rune(item.Article.Body)
	if len(excerpt) > articleExcerptChars {
		excerpt = excerpt[:articleExcerptChars]
	}
	// Leave room for roughly MaxTags short hashtags.
	budget := p.cfg.PlatformLimit - p.cfg.MaxTags*14
	if budget < p.cfg.PlatformLimit/2 {
		budget = p.cfg.PlatformLimit / 2
	}

	topics := "none"
	if len(item.Analysis.Topics) > 0 {
		topics = strings.Join(item.Analysis.Topics, ", ")
	}

	return fmt.Sprintf(`Write an engaging social media post about this %s news article.
Keep it under %d characters, factual and in plain language. Do not include hashtags, quotes or links.
Tone: %s. Urgency: %.1f of 1. Key topics: %s.

Title: %s
Article: %s`,
		categoryOrNews(item.Article.Category), budget,
		item.Analysis.Sentiment, item.Analysis.Urgency, topics,
		item.Article.Title, string(excerpt))
}

func (p *Pipeline) tagPrompt(item domain.AnalyzedArticle, body string) string {
	return fmt.Sprintf(`Suggest %d to %d relevant hashtags for this post. Reply with the hashtags only, separated by spaces.

Post: %s
Topics: %s
Category: %s`,
		p.cfg.MinTags, p.cfg.MaxTags, body, strings.Join(item.Analysis.Topics, ", "), categoryOrNews(item.Article.Category))
}

func categoryOrNews(category string) string {
	if category == "" {
		return "news"
	}
	return category
}

// cleanBody strips wrapping quotes and trailing hashtags a model may add anyway.
func cleanBody(answer string) string {
	body := strings.TrimSpace(answer)
	body = strings.Trim(body, "\"'“”")
	words := strings.Fields(body)
	end := len(words)
	for end > 0 && strings.HasPrefix(words[end-1], "#") {
		end--
	}
	if end < len(words) {
		body = strings.Join(words[:end], " ")
	}
	return strings.TrimSpace(body)
}
