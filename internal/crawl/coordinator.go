// Package crawl discovers, fetches, extracts and analyzes articles with a
// bounded worker pool shared by every category.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"NewsPoster/internal/dedup"
	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
	"NewsPoster/internal/retry"
	"NewsPoster/internal/scanner"
)

// DefaultStrategy is used for categories that do not name a discovery strategy.
const DefaultStrategy = "html"

// Analyzer never fails; it degrades to a default result instead.
type Analyzer interface {
	Analyze(ctx context.Context, article domain.Article) domain.AnalysisResult
}

// Config bounds the crawl.
type Config struct {
	// Concurrency is the size of the worker pool shared across categories.
	Concurrency int
	// PerCategoryCap limits successful articles per category; zero means no cap.
	PerCategoryCap int
	QueueSize      int
	FetchTimeout   time.Duration
	FetchPolicy    retry.Policy
	// TaskTimeout bounds one fetch-extract-analyze task, including retries.
	TaskTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Concurrency * 2
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.FetchPolicy.MaxAttempts <= 0 {
		c.FetchPolicy = retry.Exponential(3, 500*time.Millisecond, 10*time.Second, 0.2)
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	return c
}

// Deps wires the collaborators of a coordinator.
type Deps struct {
	Scanners  *scanner.Registry
	Fetcher   ports.SourceFetcher
	Extractor ports.ContentExtractor
	Analyzer  Analyzer
	Cache     *dedup.Cache
	Logger    *slog.Logger
}

// Coordinator runs crawl passes. A single coordinator may run sequentially
// many times; each Run owns its own state.
type Coordinator struct {
	cfg       Config
	scanners  *scanner.Registry
	fetcher   ports.SourceFetcher
	extractor ports.ContentExtractor
	analyzer  Analyzer
	cache     *dedup.Cache
	logger    *slog.Logger
}

// NewCoordinator validates the dependencies and applies config defaults.
func NewCoordinator(cfg Config, deps Deps) (*Coordinator, error) {
	switch {
	case deps.Scanners == nil:
		return nil, errors.New("crawl: scanner registry is required")
	case deps.Fetcher == nil:
		return nil, errors.New("crawl: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("crawl: extractor is required")
	case deps.Analyzer == nil:
		return nil, errors.New("crawl: analyzer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := deps.Cache
	if cache == nil {
		cache = dedup.New(nil, logger)
	}
	return &Coordinator{
		cfg:       cfg.withDefaults(),
		scanners:  deps.Scanners,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		cache:     cache,
		logger:    logger.With("component", "crawl"),
	}, nil
}

type task struct {
	candidate scanner.Candidate
	quota     *quota
}

// runState is the mutable state of one crawl pass.
type runState struct {
	mu       sync.Mutex
	run      domain.CrawlRun
	articles []domain.AnalyzedArticle
	queued   map[domain.Fingerprint]struct{}
}

func (s *runState) record(fn func(stats *domain.RunStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.run.Stats)
}

// enqueueOnce reports whether the URL was not yet queued in this pass.
func (s *runState) enqueueOnce(fp domain.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queued[fp]; ok {
		return false
	}
	s.queued[fp] = struct{}{}
	return true
}

// Run crawls the categories and returns the finished aggregate. Cancelling ctx
// stops discovery and dispatch; tasks already picked up by a worker finish.
func (c *Coordinator) Run(ctx context.Context, categories []scanner.Category) (domain.CrawlRun, error) {
	state := &runState{
		run:    domain.CrawlRun{Run: domain.NewRun(domain.StageCrawl)},
		queued: map[domain.Fingerprint]struct{}{},
	}
	if len(categories) == 0 {
		state.run.Finish()
		return state.run, errors.New("crawl: no categories configured")
	}

	logger := c.logger.With("run_id", state.run.ID)
	logger.Info("crawl started", "categories", len(categories), "workers", c.cfg.Concurrency, "cap", c.cfg.PerCategoryCap)

	queue := make(chan task, c.cfg.QueueSize)

	var workers sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			c.work(ctx, queue, state, logger)
		}()
	}

	var producers sync.WaitGroup
	for _, category := range categories {
		producers.Add(1)
		go func(category scanner.Category) {
			defer producers.Done()
			c.produce(ctx, category, queue, state, logger)
		}(category)
	}

	producers.Wait()
	close(queue)
	workers.Wait()

	state.run.Articles = state.articles
	sort.SliceStable(state.run.Articles, func(i, j int) bool {
		a, b := state.run.Articles[i].Article, state.run.Articles[j].Article
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.URL < b.URL
	})
	state.run.Categories = CategoryStatistics(state.run.Articles)
	state.run.Finish()

	if err := ctx.Err(); err != nil {
		logger.Warn("crawl cancelled", "error", err)
	}
	stats := state.run.Stats
	logger.Info("crawl finished",
		"attempted", stats.Attempted,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"duration", state.run.Duration())

	return state.run, nil
}

func (c *Coordinator) produce(ctx context.Context, category scanner.Category, queue chan<- task, state *runState, logger *slog.Logger) {
	logger = logger.With("category", category.Name)

	candidates, err := c.discover(ctx, category)
	if err != nil {
		logger.Warn("discovery failed", "error", err)
		state.record(func(stats *domain.RunStats) { stats.Sample(err) })
		return
	}
	logger.Debug("candidates discovered", "count", len(candidates))

	q := newQuota(c.cfg.PerCategoryCap)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return
		}
		if !q.reserve(ctx) {
			return
		}
		if !state.enqueueOnce(domain.URLFingerprint(candidate.URL)) {
			q.release(false)
			continue
		}
		select {
		case queue <- task{candidate: candidate, quota: q}:
		case <-ctx.Done():
			q.release(false)
			return
		}
	}
}

// discover lists candidate links, drops filtered and already-seen URLs and
// removes duplicates across the category's listing pages.
func (c *Coordinator) discover(ctx context.Context, category scanner.Category) ([]scanner.Candidate, error) {
	strategy := category.Strategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	discoverer, err := c.scanners.Resolve(strategy)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", category.Name, err)
	}

	found, err := discoverer.Discover(ctx, scanner.Request{Category: category})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", category.Name, err)
	}

	seen := map[domain.Fingerprint]struct{}{}
	candidates := make([]scanner.Candidate, 0, len(found))
	for _, candidate := range found {
		if !category.Filter.Allow(candidate.URL) {
			continue
		}
		fp := domain.URLFingerprint(candidate.URL)
		if _, dup := seen[fp]; dup || c.cache.Has(fp) {
			continue
		}
		seen[fp] = struct{}{}
		if candidate.Category == "" {
			candidate.Category = category.Name
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (c *Coordinator) work(ctx context.Context, queue <-chan task, state *runState, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			drain(queue)
			return
		case t, ok := <-queue:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				t.quota.release(false)
				drain(queue)
				return
			}
			c.handle(ctx, t, state, logger)
		}
	}
}

// drain releases quota held by tasks that will never run so producers unblock.
func drain(queue <-chan task) {
	for t := range queue {
		t.quota.release(false)
	}
}

func (c *Coordinator) handle(ctx context.Context, t task, state *runState, logger *slog.Logger) {
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.TaskTimeout)
	defer cancel()

	article, err := c.process(taskCtx, t.candidate, logger)
	switch {
	case err == nil:
		t.quota.release(true)
		state.mu.Lock()
		state.articles = append(state.articles, article)
		state.run.Stats.Success()
		state.mu.Unlock()
	case errors.Is(err, errDuplicate), errors.Is(err, domain.ErrExtraction):
		t.quota.release(false)
		logger.Debug("article skipped", "url", t.candidate.URL, "error", err)
		state.record(func(stats *domain.RunStats) {
			if errors.Is(err, errDuplicate) {
				stats.Skip(nil)
				return
			}
			stats.Skip(err)
		})
	default:
		t.quota.release(false)
		logger.Warn("article failed", "url", t.candidate.URL, "error", err)
		state.record(func(stats *domain.RunStats) { stats.Failure(err) })
	}
}

var errDuplicate = errors.New("duplicate article")

func (c *Coordinator) process(ctx context.Context, candidate scanner.Candidate, logger *slog.Logger) (domain.AnalyzedArticle, error) {
	var page ports.FetchResult
	policy := c.cfg.FetchPolicy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Debug("fetch retry", "url", candidate.URL, "attempt", attempt, "delay", delay, "error", err)
	}
	_, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		var fetchErr error
		page, fetchErr = c.fetcher.Fetch(ctx, candidate.URL, c.cfg.FetchTimeout)
		return fetchErr
	})
	if err != nil {
		return domain.AnalyzedArticle{}, fmt.Errorf("fetch %s: %w", candidate.URL, err)
	}

	pageURL := candidate.URL
	if page.FinalURL != "" {
		pageURL = page.FinalURL
	}
	fields, err := c.extractor.Extract(pageURL, page.Body)
	if err != nil {
		if !errors.Is(err, domain.ErrExtraction) {
			err = fmt.Errorf("%w: %w", domain.ErrExtraction, err)
		}
		return domain.AnalyzedArticle{}, fmt.Errorf("extract %s: %w", candidate.URL, err)
	}
	if fields.Title == "" {
		fields.Title = candidate.Title
	}

	article := domain.NewArticle(candidate.URL, candidate.Category, fields)
	if !c.cache.Claim(article.Fingerprint) {
		return domain.AnalyzedArticle{}, fmt.Errorf("%s: %w", candidate.URL, errDuplicate)
	}
	c.cache.Record(domain.URLFingerprint(candidate.URL))

	return domain.AnalyzedArticle{
		Article:  article,
		Analysis: c.analyzer.Analyze(ctx, article),
	}, nil
}

// quota keeps succeeded plus in-flight tasks of one category under the cap.
type quota struct {
	mu        sync.Mutex
	limit     int
	succeeded int
	inflight  int
	changed   chan struct{}
}

func newQuota(limit int) *quota {
	return &quota{limit: limit, changed: make(chan struct{}, 1)}
}

// reserve blocks until a slot is free. It returns false once the cap is
// reached or ctx is done.
func (q *quota) reserve(ctx context.Context) bool {
	for {
		q.mu.Lock()
		if q.limit <= 0 {
			q.inflight++
			q.mu.Unlock()
			return true
		}
		if q.succeeded >= q.limit {
			q.mu.Unlock()
			return false
		}
		if q.succeeded+q.inflight < q.limit {
			q.inflight++
			q.mu.Unlock()
			return true
		}
		q.mu.Unlock()

		select {
		case <-q.changed:
		case <-ctx.Done():
			return false
		}
	}
}

func (q *quota) release(success bool) {
	q.mu.Lock()
	q.inflight--
	if success {
		q.succeeded++
	}
	q.mu.Unlock()

	select {
	case q.changed <- struct{}{}:
	default:
	}
}
