package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

const (
	crawlFile    = "crawl_results.json"
	postsFile    = "candidate_posts.json"
	outcomesFile = "post_outcomes.json"
)

// JSONStore keeps the latest output of every stage as JSON files in one directory.
type JSONStore struct {
	dir string
	mu  sync.Mutex
}

var _ ports.RecordStore = (*JSONStore)(nil)

// NewJSONStore creates dir if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", domain.ErrStore, err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveCrawl replaces the stored crawl run.
func (s *JSONStore) SaveCrawl(_ context.Context, run domain.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path(crawlFile), run)
}

// LoadCrawl returns the articles of the last stored crawl run.
func (s *JSONStore) LoadCrawl(_ context.Context) ([]domain.AnalyzedArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var run domain.CrawlRun
	if _, err := readJSON(s.path(crawlFile), &run); err != nil {
		return nil, err
	}
	return run.Articles, nil
}

// SavePosts replaces the stored candidate posts.
func (s *JSONStore) SavePosts(_ context.Context, run domain.GenerationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path(postsFile), run)
}

// LoadPosts returns the candidates of the last generation run.
func (s *JSONStore) LoadPosts(_ context.Context) ([]domain.CandidatePost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var run domain.GenerationRun
	if _, err := readJSON(s.path(postsFile), &run); err != nil {
		return nil, err
	}
	return run.Posts, nil
}

// SaveOutcomes merges outcomes into the history, keyed by normalized article
// URL. A posted entry is never replaced by a later non-posted one. A history
// that does not decode is moved aside as .corrupt and the merge starts empty.
func (s *JSONStore) SaveOutcomes(_ context.Context, run domain.PostingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(outcomesFile)
	var history []domain.PostOutcome
	if _, err := readJSON(path, &history); err != nil {
		if !errors.Is(err, errCorrupt) {
			return err
		}
		if err := quarantine(path); err != nil {
			return err
		}
		history = nil
	}
	return writeJSON(path, mergeOutcomes(history, run.Outcomes))
}

// LoadOutcomes returns the outcome history.
func (s *JSONStore) LoadOutcomes(_ context.Context) ([]domain.PostOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []domain.PostOutcome
	if _, err := readJSON(s.path(outcomesFile), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func mergeOutcomes(history, fresh []domain.PostOutcome) []domain.PostOutcome {
	byURL := make(map[string]domain.PostOutcome, len(history)+len(fresh))
	for _, outcome := range append(history, fresh...) {
		key := domain.NormalizeURL(outcome.Candidate.ArticleURL)
		if prev, ok := byURL[key]; ok && prev.Status == domain.PostPosted && outcome.Status != domain.PostPosted {
			continue
		}
		byURL[key] = outcome
	}

	merged := make([]domain.PostOutcome, 0, len(byURL))
	for _, outcome := range byURL {
		merged = append(merged, outcome)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].FinishedAt.Equal(merged[j].FinishedAt) {
			return merged[i].FinishedAt.Before(merged[j].FinishedAt)
		}
		return merged[i].Candidate.ArticleURL < merged[j].Candidate.ArticleURL
	})
	return merged
}
