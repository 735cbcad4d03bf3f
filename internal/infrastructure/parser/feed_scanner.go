package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/scanner"
)

// FeedScanner discovers article links from RSS or Atom feeds.
type FeedScanner struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// NewFeedScanner builds a feed scanner around client.
func NewFeedScanner(client *http.Client, logger *slog.Logger) *FeedScanner {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "NewsPoster/1.0"
	return &FeedScanner{parser: parser, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *FeedScanner) Name() string {
	return "rss"
}

// Discover reads every feed listed for the category, newest items first as published.
func (s *FeedScanner) Discover(ctx context.Context, req scanner.Request) ([]scanner.Candidate, error) {
	if len(req.Category.ListingURLs) == 0 {
		return nil, fmt.Errorf("no feed urls for category %s", req.Category.Name)
	}

	var (
		results []scanner.Candidate
		errs    []error
		seen    = map[domain.Fingerprint]struct{}{}
	)
	for _, feedURL := range req.Category.ListingURLs {
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			s.logger.Warn("feed unavailable", "url", feedURL, "error", err)
			errs = append(errs, fmt.Errorf("parse feed %s: %w: %w", feedURL, domain.ErrNetwork, err))
			continue
		}

		for _, item := range feed.Items {
			link := strings.TrimSpace(item.Link)
			if link == "" {
				continue
			}
			fp := domain.URLFingerprint(link)
			if _, ok := seen[fp]; ok {
				continue
			}
			seen[fp] = struct{}{}
			results = append(results, scanner.Candidate{
				URL:      link,
				Title:    strings.TrimSpace(item.Title),
				Category: scanner.InferCategory(link, req.Category.Name),
			})
			if req.Limit > 0 && len(results) >= req.Limit {
				return results, nil
			}
		}
	}

	if len(results) == 0 && len(errs) == len(req.Category.ListingURLs) {
		return nil, fmt.Errorf("category %s: %w", req.Category.Name, errors.Join(errs...))
	}
	return results, nil
}
