package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsPoster/internal/config"
	"NewsPoster/internal/ports"
	"NewsPoster/internal/scanner"
)

type recordingSink struct {
	events []ports.Event
	err    error
}

func (r *recordingSink) Append(_ context.Context, events ...ports.Event) error {
	r.events = append(r.events, events...)
	return r.err
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	t.Parallel()

	first := &recordingSink{err: errors.New("disk full")}
	second := &recordingSink{}

	err := fanout{first, second}.Append(context.Background(), ports.Event{Kind: "stage_finished"}, ports.Event{Kind: "item_failed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, first.events, 2)
	assert.Len(t, second.events, 2)
}

func TestCategoriesFromSites(t *testing.T) {
	t.Parallel()

	sites := []config.SiteConfig{
		{
			Name:    "guardian",
			Hosts:   []string{"theguardian.com"},
			Include: []string{"/2025/"},
			Categories: []config.CategoryConfig{
				{Name: "world", URLs: []string{"https://www.theguardian.com/world"}},
				{Name: "sport", URLs: []string{"https://www.theguardian.com/sport"}, Include: []string{"/sport/"}, Exclude: []string{"/live/"}},
			},
		},
		{
			Name:    "bbc",
			Scanner: "rss",
			Categories: []config.CategoryConfig{
				{Name: "world", URLs: []string{"https://feeds.bbci.co.uk/news/world/rss.xml"}},
			},
		},
	}

	got := Categories(sites)
	require.Len(t, got, 3)

	assert.Equal(t, "html", got[0].Strategy)
	assert.Equal(t, []string{"/2025/"}, got[0].Filter.Include)
	assert.Equal(t, scanner.DefaultExclude, got[0].Filter.Exclude)
	assert.Equal(t, []string{"theguardian.com"}, got[0].Filter.Hosts)

	assert.Equal(t, []string{"/sport/"}, got[1].Filter.Include)
	assert.Equal(t, []string{"/live/"}, got[1].Filter.Exclude)

	assert.Equal(t, "rss", got[2].Strategy)
	assert.Empty(t, got[2].Filter.Hosts)
}

func TestNewWiresDefaults(t *testing.T) {
	t.Setenv("NEWSPOSTER_CONFIG", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("NEWSPOSTER_DATA_DIR", "")

	cfg := config.Load("")
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Fingerprints = config.FingerprintsSQLite
	cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.DataDir, "fp.db")

	application, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, application.Close())
}

func TestStageModelsAreIndependent(t *testing.T) {
	t.Parallel()

	cfg := config.GenerationConfig{
		Body:        config.ModelConfig{Provider: config.ProviderOllama, Model: "llama3.2:3b", BaseURL: "http://localhost:11434/v1"},
		CallTimeout: time.Second,
	}

	body, tags, err := stageModels(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotSame(t, body, tags)
	assert.Equal(t, body.Name(), tags.Name())

	cfg.Tags = config.ModelConfig{Provider: config.ProviderOllama, Model: "qwen2.5:1.5b", BaseURL: "http://localhost:11434/v1"}
	body, tags, err = stageModels(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, body.Name(), tags.Name())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Setenv("NEWSPOSTER_CONFIG", "")

	cfg := config.Load("")
	cfg.Storage.DataDir = t.TempDir()
	cfg.Crawl.Concurrency = 0

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
}
