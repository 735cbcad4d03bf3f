package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"NewsPoster/internal/dedup"
	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
	"NewsPoster/internal/scanner"
)

// Crawler runs the discovery and fetch stage.
type Crawler interface {
	Run(ctx context.Context, categories []scanner.Category) (domain.CrawlRun, error)
}

// Generator turns analyzed articles into candidate posts.
type Generator interface {
	Run(ctx context.Context, articles []domain.AnalyzedArticle) domain.GenerationRun
}

// Poster publishes candidate posts.
type Poster interface {
	Run(ctx context.Context, posts []domain.CandidatePost) domain.PostingRun
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Crawler    Crawler
	Generator  Generator
	Poster     Poster
	Cache      *dedup.Cache
	Records    ports.RecordStore
	Events     ports.EventLog
	Categories []scanner.Category
	Logger     *slog.Logger
}

// Summary is the user-visible report of one stage run.
type Summary struct {
	Stage      domain.Stage
	RunID      string
	Result     domain.RunResult
	Stats      domain.RunStats
	Fatal      string
	Duration   time.Duration
	Categories map[string]domain.CategoryStats
	Notes      []string
}

// Failed reports whether the stage should make the process exit non-zero.
func (s Summary) Failed() bool {
	return s.Result == domain.ResultFailure
}

// Pipeline runs each stage as an independent batch job over the persisted
// output of the previous stage.
type Pipeline struct {
	crawler    Crawler
	generator  Generator
	poster     Poster
	cache      *dedup.Cache
	records    ports.RecordStore
	events     ports.EventLog
	categories []scanner.Category
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		crawler:    deps.Crawler,
		generator:  deps.Generator,
		poster:     deps.Poster,
		cache:      deps.Cache,
		records:    deps.Records,
		events:     deps.Events,
		categories: deps.Categories,
		logger:     logger.With("component", "pipeline"),
	}
}

// Crawl loads the dedup cache, crawls every category, persists the analyzed
// articles and flushes the cache.
func (p *Pipeline) Crawl(ctx context.Context) (Summary, error) {
	if p.crawler == nil {
		return Summary{}, errors.New("crawl stage is not configured")
	}
	if p.cache != nil {
		p.cache.Load(ctx)
		defer func() {
			if err := p.cache.Flush(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("dedup cache not saved", "error", err)
			}
		}()
	}

	p.emit(ctx, "", domain.StageCrawl, "stage_started", "crawl started", map[string]string{
		"categories": strconv.Itoa(len(p.categories)),
	})

	run, err := p.crawler.Run(ctx, p.categories)
	if err != nil {
		summary := failedSummary(domain.StageCrawl, run.Run, err)
		p.finish(ctx, summary)
		return summary, fmt.Errorf("crawl: %w", err)
	}

	summary := summarize(run.Run)
	summary.Categories = run.Categories
	if p.records != nil {
		if err := p.records.SaveCrawl(context.WithoutCancel(ctx), run); err != nil {
			p.storeWarning(&summary, "crawl results not saved", err)
		}
	}
	p.finish(ctx, summary)
	return summary, nil
}

// Generate reads the last crawl output and produces candidate posts.
func (p *Pipeline) Generate(ctx context.Context) (Summary, error) {
	if p.generator == nil {
		return Summary{}, errors.New("generate stage is not configured")
	}

	var articles []domain.AnalyzedArticle
	var loadErr error
	if p.records != nil {
		articles, loadErr = p.records.LoadCrawl(ctx)
	}
	if loadErr != nil {
		p.logger.Warn("crawl results unreadable, nothing to generate", "error", loadErr)
		articles = nil
	}
	p.emit(ctx, "", domain.StageGenerate, "stage_started", "generation started", map[string]string{
		"articles": strconv.Itoa(len(articles)),
	})

	run := p.generator.Run(ctx, articles)
	summary := summarize(run.Run)
	if loadErr != nil {
		p.storeWarning(&summary, "crawl results unreadable", loadErr)
	}
	if p.records != nil {
		if err := p.records.SavePosts(context.WithoutCancel(ctx), run); err != nil {
			p.storeWarning(&summary, "posts not saved", err)
		}
	}
	p.finish(ctx, summary)
	return summary, nil
}

// Post publishes generated posts that have not been posted before.
func (p *Pipeline) Post(ctx context.Context) (Summary, error) {
	if p.poster == nil {
		return Summary{}, errors.New("post stage is not configured")
	}

	var (
		posts    []domain.CandidatePost
		previous []domain.PostOutcome
		loadErr  error
	)
	if p.records != nil {
		posts, loadErr = p.records.LoadPosts(ctx)
		if loadErr != nil {
			p.logger.Warn("generated posts unreadable, nothing to post", "error", loadErr)
			posts = nil
		}
		var err error
		previous, err = p.records.LoadOutcomes(ctx)
		if err != nil {
			p.logger.Warn("previous outcomes unreadable, assuming none", "error", err)
		}
	}

	pending, already := PendingPosts(posts, previous)
	p.emit(ctx, "", domain.StagePost, "stage_started", "posting started", map[string]string{
		"pending":        strconv.Itoa(len(pending)),
		"already_posted": strconv.Itoa(already),
	})

	run := p.poster.Run(ctx, pending)
	summary := summarize(run.Run)
	summary.Notes = append(summary.Notes, "final state "+run.FinalState)
	if already > 0 {
		summary.Notes = append(summary.Notes, fmt.Sprintf("%d already posted", already))
	}
	if loadErr != nil {
		p.storeWarning(&summary, "generated posts unreadable", loadErr)
	}

	for _, outcome := range run.Outcomes {
		fields := map[string]string{
			"url":      outcome.Candidate.ArticleURL,
			"attempts": strconv.Itoa(outcome.AttemptCount),
		}
		if outcome.Strategy != "" {
			fields["strategy"] = outcome.Strategy
		}
		if outcome.LastError != "" {
			fields["error"] = outcome.LastError
		}
		p.emit(ctx, run.ID, domain.StagePost, "post_"+string(outcome.Status), outcome.Candidate.ArticleURL, fields)
	}

	if p.records != nil {
		if err := p.records.SaveOutcomes(context.WithoutCancel(ctx), run); err != nil {
			p.storeWarning(&summary, "post outcomes not saved", err)
		}
	}
	p.finish(ctx, summary)
	return summary, nil
}

// RunAll executes crawl, generate and post in sequence. A failing stage does
// not stop the next one; cancellation does.
func (p *Pipeline) RunAll(ctx context.Context) ([]Summary, error) {
	stages := []func(context.Context) (Summary, error){p.Crawl, p.Generate, p.Post}
	summaries := make([]Summary, 0, len(stages))
	var errs []error
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary, err := stage(ctx)
		if summary.Stage != "" {
			summaries = append(summaries, summary)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return summaries, errors.Join(errs...)
}

// PendingPosts drops candidates whose article was already posted in an earlier run.
func PendingPosts(posts []domain.CandidatePost, previous []domain.PostOutcome) ([]domain.CandidatePost, int) {
	posted := map[string]bool{}
	for _, outcome := range previous {
		if outcome.Status == domain.PostPosted {
			posted[domain.NormalizeURL(outcome.Candidate.ArticleURL)] = true
		}
	}
	pending := make([]domain.CandidatePost, 0, len(posts))
	already := 0
	for _, post := range posts {
		if posted[domain.NormalizeURL(post.ArticleURL)] {
			already++
			continue
		}
		pending = append(pending, post)
	}
	return pending, already
}

func summarize(run domain.Run) Summary {
	return Summary{
		Stage:    run.Stage,
		RunID:    run.ID,
		Result:   run.Result(),
		Stats:    run.Stats,
		Fatal:    run.Fatal,
		Duration: run.Duration(),
	}
}

func failedSummary(stage domain.Stage, run domain.Run, err error) Summary {
	summary := summarize(run)
	summary.Stage = stage
	summary.Fatal = err.Error()
	summary.Result = domain.ResultFailure
	return summary
}

func (p *Pipeline) storeWarning(summary *Summary, msg string, err error) {
	p.logger.Warn(msg, "stage", summary.Stage, "error", err)
	summary.Stats.Sample(fmt.Errorf("%s: %w", msg, err))
}

func (p *Pipeline) finish(ctx context.Context, summary Summary) {
	logArgs := []any{
		"stage", summary.Stage,
		"run_id", summary.RunID,
		"result", summary.Result,
		"attempted", summary.Stats.Attempted,
		"succeeded", summary.Stats.Succeeded,
		"failed", summary.Stats.Failed,
		"skipped", summary.Stats.Skipped,
	}
	switch summary.Result {
	case domain.ResultFailure:
		p.logger.Error("stage failed", append(logArgs, "fatal", summary.Fatal, "errors", summary.Stats.Errors)...)
	case domain.ResultEmpty:
		p.logger.Warn("stage had nothing to do", logArgs...)
	default:
		p.logger.Info("stage finished", logArgs...)
	}

	fields := map[string]string{
		"attempted": strconv.Itoa(summary.Stats.Attempted),
		"succeeded": strconv.Itoa(summary.Stats.Succeeded),
		"failed":    strconv.Itoa(summary.Stats.Failed),
		"skipped":   strconv.Itoa(summary.Stats.Skipped),
	}
	if summary.Fatal != "" {
		fields["fatal"] = summary.Fatal
	}
	p.emit(ctx, summary.RunID, summary.Stage, "stage_finished", string(summary.Result), fields)
}

func (p *Pipeline) emit(ctx context.Context, runID string, stage domain.Stage, kind, message string, fields map[string]string) {
	if p.events == nil {
		return
	}
	event := ports.Event{
		Time:    time.Now().UTC(),
		RunID:   runID,
		Stage:   stage,
		Kind:    kind,
		Message: message,
		Fields:  fields,
	}
	if err := p.events.Append(context.WithoutCancel(ctx), event); err != nil {
		p.logger.Warn("run event not recorded", "kind", kind, "error", err)
	}
}
