package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

func analyzed(url, title string) domain.AnalyzedArticle {
	article := domain.NewArticle(url, "world", domain.ArticleFields{Title: title, Body: "Body text of the article."})
	return domain.AnalyzedArticle{Article: article, Analysis: domain.DefaultAnalysis()}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := NewJSONStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	articles, err := store.LoadCrawl(ctx)
	require.NoError(t, err)
	assert.Empty(t, articles)

	crawl := domain.CrawlRun{Run: domain.NewRun(domain.StageCrawl)}
	crawl.Articles = []domain.AnalyzedArticle{analyzed("https://example.com/a", "A"), analyzed("https://example.com/b", "B")}
	require.NoError(t, store.SaveCrawl(ctx, crawl))

	articles, err = store.LoadCrawl(ctx)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, crawl.Articles[0].Article.Fingerprint, articles[0].Article.Fingerprint)

	gen := domain.GenerationRun{Run: domain.NewRun(domain.StageGenerate)}
	gen.Posts = []domain.CandidatePost{{ArticleURL: "https://example.com/a", Body: "Hello", Tags: []string{"#A"}}}
	require.NoError(t, store.SavePosts(ctx, gen))

	posts, err := store.LoadPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen.Posts, posts)
}

func TestJSONStoreMergesOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	t0 := time.Date(2025, 11, 8, 9, 0, 0, 0, time.UTC)
	first := domain.PostingRun{Outcomes: []domain.PostOutcome{
		{Candidate: domain.CandidatePost{ArticleURL: "https://example.com/a"}, Status: domain.PostPosted, FinishedAt: t0},
		{Candidate: domain.CandidatePost{ArticleURL: "https://example.com/b"}, Status: domain.PostFailed, FinishedAt: t0},
	}}
	require.NoError(t, store.SaveOutcomes(ctx, first))

	second := domain.PostingRun{Outcomes: []domain.PostOutcome{
		{Candidate: domain.CandidatePost{ArticleURL: "https://example.com/a?utm_source=x"}, Status: domain.PostFailed, FinishedAt: t0.Add(time.Hour)},
		{Candidate: domain.CandidatePost{ArticleURL: "https://example.com/b"}, Status: domain.PostPosted, FinishedAt: t0.Add(time.Hour)},
	}}
	require.NoError(t, store.SaveOutcomes(ctx, second))

	history, err := store.LoadOutcomes(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)

	statuses := map[string]domain.PostStatus{}
	for _, o := range history {
		statuses[domain.NormalizeURL(o.Candidate.ArticleURL)] = o.Status
	}
	assert.Equal(t, domain.PostPosted, statuses[domain.NormalizeURL("https://example.com/a")])
	assert.Equal(t, domain.PostPosted, statuses[domain.NormalizeURL("https://example.com/b")])
}

func TestJSONStoreCorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, crawlFile), []byte("{not json"), 0o644))

	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	_, err = store.LoadCrawl(context.Background())
	require.ErrorIs(t, err, domain.ErrStore)
}

func TestJSONStoreRecoversCorruptOutcomeHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, outcomesFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	_, err = store.LoadOutcomes(ctx)
	require.ErrorIs(t, err, domain.ErrStore)

	posted := domain.PostingRun{Outcomes: []domain.PostOutcome{{
		Candidate:  domain.CandidatePost{ArticleURL: "https://example.com/a"},
		Status:     domain.PostPosted,
		FinishedAt: time.Now().UTC(),
	}}}
	require.NoError(t, store.SaveOutcomes(ctx, posted))
	require.NoError(t, store.SaveOutcomes(ctx, posted))

	history, err := store.LoadOutcomes(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.PostPosted, history[0].Status)

	aside, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(aside))
}

func TestJSONFingerprintStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "nested", "fingerprints.json")
	store := NewJSONFingerprintStore(path)

	fps, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, fps)

	want := []domain.Fingerprint{"aa", "bb"}
	require.NoError(t, store.Save(ctx, want))

	fps, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, fps)

	require.NoError(t, os.WriteFile(path, []byte("[1,"), 0o644))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrStore)
}

func TestSQLiteFingerprintStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "fingerprints.db")
	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, []domain.Fingerprint{"b", "a"}))
	require.NoError(t, store.Save(ctx, []domain.Fingerprint{"a", "c"}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	fps, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Fingerprint{"a", "b", "c"}, fps)
}

func TestSQLiteFingerprintStoreLargeBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "fp.db"))
	require.NoError(t, err)
	defer store.Close()

	fps := make([]domain.Fingerprint, 0, 1200)
	for i := range 1200 {
		fps = append(fps, domain.NewFingerprint("https://example.com/"+strconv.Itoa(i), "t"))
	}
	require.NoError(t, store.Save(ctx, fps))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1200)
}

func TestRedisFingerprintStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "newsposter:test:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	store := NewRedisFingerprintStore(client, key)
	require.NoError(t, store.Save(ctx, []domain.Fingerprint{"a", "b"}))
	require.NoError(t, store.Save(ctx, []domain.Fingerprint{"b", "c"}))

	fps, err := store.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Fingerprint{"a", "b", "c"}, fps)
}

func TestEventLogAppends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	log := NewEventLog(path)

	require.NoError(t, log.Append(ctx, ports.Event{RunID: "r1", Stage: domain.StageCrawl, Kind: "stage_finished"}))
	require.NoError(t, log.Append(ctx,
		ports.Event{RunID: "r2", Stage: domain.StagePost, Kind: "post_posted", Fields: map[string]string{"url": "https://example.com/a"}},
		ports.Event{RunID: "r2", Stage: domain.StagePost, Kind: "stage_finished"},
	))
	require.NoError(t, log.Append(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var kinds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event ports.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		kinds = append(kinds, event.Kind)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"stage_finished", "post_posted", "stage_finished"}, kinds)
}
