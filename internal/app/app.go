package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"NewsPoster/internal/analysis"
	"NewsPoster/internal/config"
	"NewsPoster/internal/crawl"
	"NewsPoster/internal/dedup"
	"NewsPoster/internal/generation"
	"NewsPoster/internal/infrastructure/browser"
	"NewsPoster/internal/infrastructure/fetcher"
	"NewsPoster/internal/infrastructure/llm"
	"NewsPoster/internal/infrastructure/ml"
	"NewsPoster/internal/infrastructure/parser"
	"NewsPoster/internal/infrastructure/storage"
	"NewsPoster/internal/infrastructure/telegram"
	"NewsPoster/internal/logging"
	"NewsPoster/internal/ports"
	"NewsPoster/internal/posting"
	"NewsPoster/internal/retry"
	"NewsPoster/internal/scanner"
	"NewsPoster/internal/usecase"
)

// Application wires configs to use cases and owns the resources they hold.
type Application struct {
	cfg      config.Config
	pipeline *usecase.Pipeline
	closers  []io.Closer
	logger   *slog.Logger
}

// New builds every adapter named by cfg. Nothing is contacted yet except the
// fingerprint store backend.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger.With("component", "app")}
	pipeline, err := a.wire(ctx, baseLogger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.pipeline = pipeline
	a.logger.Info("application ready",
		"categories", len(Categories(cfg.Sites)),
		"fingerprints", cfg.Storage.Fingerprints,
		"body_model", cfg.Generation.Body.Provider+":"+cfg.Generation.Body.Model,
	)
	return a, nil
}

func (a *Application) wire(ctx context.Context, logger *slog.Logger) (*usecase.Pipeline, error) {
	cfg := a.cfg

	records, err := storage.NewJSONStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	fingerprints, err := a.fingerprintStore(ctx)
	if err != nil {
		return nil, err
	}
	cache := dedup.New(fingerprints, logger.With("component", "dedup"))

	crawler, err := a.crawler(ctx, cache, logger)
	if err != nil {
		return nil, err
	}
	generator, err := a.generator(ctx, logger)
	if err != nil {
		return nil, err
	}
	poster, err := a.poster(logger)
	if err != nil {
		return nil, err
	}

	return usecase.NewPipeline(usecase.PipelineDeps{
		Crawler:    crawler,
		Generator:  generator,
		Poster:     poster,
		Cache:      cache,
		Records:    records,
		Events:     a.events(),
		Categories: Categories(cfg.Sites),
		Logger:     logger.With("component", "pipeline"),
	}), nil
}

func (a *Application) events() ports.EventLog {
	sinks := fanout{storage.NewEventLog(filepath.Join(a.cfg.Storage.DataDir, "events.jsonl"))}
	if tg := a.cfg.Notifications.Telegram; tg.Enabled() {
		sinks = append(sinks, telegram.NewNotifier(tg.BotToken, tg.ChatID))
	}
	return sinks
}

// fanout delivers every event to each sink and joins their errors.
type fanout []ports.EventLog

func (f fanout) Append(ctx context.Context, events ...ports.Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Append(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Application) fingerprintStore(ctx context.Context) (ports.FingerprintStore, error) {
	st := a.cfg.Storage
	switch st.Fingerprints {
	case config.FingerprintsSQLite:
		store, err := storage.OpenSQLite(ctx, st.SQLiteFile())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	case config.FingerprintsRedis:
		client := redis.NewClient(&redis.Options{Addr: st.RedisAddr})
		a.closers = append(a.closers, client)
		return storage.NewRedisFingerprintStore(client, st.RedisKey), nil
	default:
		return storage.NewJSONFingerprintStore(filepath.Join(st.DataDir, "fingerprints.json")), nil
	}
}

func (a *Application) crawler(ctx context.Context, cache *dedup.Cache, logger *slog.Logger) (*crawl.Coordinator, error) {
	cfg := a.cfg
	client := &http.Client{Timeout: cfg.Crawl.FetchTimeout}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewHTMLListingScanner(client, nil, logger.With("component", "scanner.html")))
	registry.Register(parser.NewFeedScanner(client, logger.With("component", "scanner.rss")))

	var analyzers []ports.Analyzer
	if cfg.Analysis.ServiceURL != "" {
		analyzers = append(analyzers, ml.NewClient(cfg.Analysis.ServiceURL, cfg.Analysis.ServiceAPIKey, cfg.Analysis.Timeout))
	}
	if cfg.Analysis.Model.Enabled() {
		model, err := llm.New(ctx, cfg.Analysis.Model, cfg.Analysis.Timeout)
		if err != nil {
			return nil, fmt.Errorf("analysis model: %w", err)
		}
		analyzers = append(analyzers, analysis.NewModel(model))
	}
	analyzers = append(analyzers, analysis.NewLexical(nil))

	return crawl.NewCoordinator(crawl.Config{
		Concurrency:    cfg.Crawl.Concurrency,
		PerCategoryCap: cfg.Crawl.PerCategoryCap,
		FetchTimeout:   cfg.Crawl.FetchTimeout,
		FetchPolicy:    retry.Exponential(cfg.Crawl.FetchAttempts, cfg.Crawl.FetchBaseDelay, cfg.Crawl.FetchMaxDelay, 0.2),
		TaskTimeout:    cfg.Crawl.TaskTimeout,
	}, crawl.Deps{
		Scanners:  registry,
		Fetcher:   fetcher.NewHTTPFetcher(client, cfg.Crawl.UserAgent),
		Extractor: parser.NewSelectorExtractor(parser.DefaultExtractorConfig()),
		Analyzer:  analysis.NewService(logger.With("component", "analysis"), cfg.Analysis.Timeout, analyzers...),
		Cache:     cache,
		Logger:    logger,
	})
}

func (a *Application) generator(ctx context.Context, logger *slog.Logger) (*generation.Pipeline, error) {
	cfg := a.cfg.Generation

	body, tags, err := stageModels(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return generation.NewPipeline(generation.Config{
		PlatformLimit: cfg.PlatformLimit,
		MinTags:       cfg.MinTags,
		MaxTags:       cfg.MaxTags,
		BodyPolicy:    retry.LinearBackoff(cfg.BodyAttempts, cfg.BodyBackoff),
		CallTimeout:   cfg.CallTimeout,
	}, body, tags, logger)
}

// stageModels builds separate clients for body and tag generation. Without a
// tag model the tag stage gets its own client for the body model settings.
func stageModels(ctx context.Context, cfg config.GenerationConfig) (body, tags ports.LanguageModel, err error) {
	if body, err = llm.New(ctx, cfg.Body, cfg.CallTimeout); err != nil {
		return nil, nil, fmt.Errorf("body model: %w", err)
	}
	tagCfg := cfg.Tags
	if !tagCfg.Enabled() {
		tagCfg = cfg.Body
	}
	if tags, err = llm.New(ctx, tagCfg, cfg.CallTimeout); err != nil {
		return nil, nil, fmt.Errorf("tag model: %w", err)
	}
	return body, tags, nil
}

func (a *Application) poster(logger *slog.Logger) (*posting.Agent, error) {
	cfg := a.cfg.Posting

	strategies, err := posting.ParseStrategies(cfg.Strategies)
	if err != nil {
		return nil, err
	}
	site := posting.DefaultSite()
	if cfg.LoginURL != "" {
		site.LoginURL = cfg.LoginURL
	}
	if cfg.HomeURL != "" {
		site.HomeURL = cfg.HomeURL
	}

	driver := browser.NewChromeDriver(browser.Options{
		Headless:  cfg.Headless,
		UserAgent: cfg.UserAgent,
	}, logger.With("component", "browser"))
	a.closers = append(a.closers, driver)

	return posting.NewAgent(posting.Config{
		Credentials:    posting.Credentials{Username: cfg.Username, Password: cfg.Password},
		Site:           site,
		Strategies:     strategies,
		PacingInterval: cfg.PacingInterval,
		MaxPosts:       cfg.MaxPosts,
		PlatformLimit:  a.cfg.Generation.PlatformLimit,
		AuthAttempts:   cfg.AuthAttempts,
		AuthBackoff:    cfg.AuthBackoff,
		SubmitTimeout:  cfg.SubmitTimeout,
		OnTransition: func(from, to posting.State) {
			logger.Debug("agent state", "component", "posting", "from", from, "to", to)
		},
	}, driver, logger)
}

// Categories flattens configured sites into crawl categories. Category-level
// patterns replace the site-level ones.
func Categories(sites []config.SiteConfig) []scanner.Category {
	var out []scanner.Category
	for _, site := range sites {
		strategy := site.Scanner
		if strategy == "" {
			strategy = "html"
		}
		for _, category := range site.Categories {
			filter := scanner.Filter{
				Hosts:   site.Hosts,
				Include: site.Include,
				Exclude: site.Exclude,
			}
			if len(category.Include) > 0 {
				filter.Include = category.Include
			}
			if len(category.Exclude) > 0 {
				filter.Exclude = category.Exclude
			}
			if filter.Exclude == nil {
				filter.Exclude = scanner.DefaultExclude
			}
			out = append(out, scanner.Category{
				Name:        category.Name,
				ListingURLs: category.URLs,
				Strategy:    strategy,
				Filter:      filter,
			})
		}
	}
	return out
}

// Crawl runs the crawl stage.
func (a *Application) Crawl(ctx context.Context) (usecase.Summary, error) {
	return a.pipeline.Crawl(ctx)
}

// Generate runs the generation stage on the stored crawl output.
func (a *Application) Generate(ctx context.Context) (usecase.Summary, error) {
	return a.pipeline.Generate(ctx)
}

// Post publishes stored candidate posts.
func (a *Application) Post(ctx context.Context) (usecase.Summary, error) {
	return a.pipeline.Post(ctx)
}

// RunAll chains the three stages.
func (a *Application) RunAll(ctx context.Context) ([]usecase.Summary, error) {
	return a.pipeline.RunAll(ctx)
}

// Close releases the browser session and store connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
