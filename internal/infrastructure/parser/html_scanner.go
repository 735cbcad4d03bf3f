package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/scanner"
)

// DefaultLinkSelectors find article links on Guardian-style section fronts.
var DefaultLinkSelectors = []string{
	`a[data-link-name="article"]`,
	`.fc-item__link`,
	`.u-faux-block-link__overlay`,
	`.fc-item__content a`,
	`.card__link`,
	`.headline a`,
	`h3 a[href], h4 a[href]`,
	`.fc-item__header a`,
	`a[data-component="LinkTo"]`,
}

// HTMLListingScanner discovers article links on listing pages.
type HTMLListingScanner struct {
	client    *http.Client
	selectors []string
	logger    *slog.Logger
}

var _ scanner.Scanner = (*HTMLListingScanner)(nil)

// NewHTMLListingScanner wires an HTTP client; nil selectors use DefaultLinkSelectors.
func NewHTMLListingScanner(client *http.Client, selectors []string, logger *slog.Logger) *HTMLListingScanner {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if len(selectors) == 0 {
		selectors = DefaultLinkSelectors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLListingScanner{client: client, selectors: selectors, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *HTMLListingScanner) Name() string {
	return "html"
}

// Discover walks every listing URL of the category. A page that cannot be
// fetched is logged and skipped; the call fails only if every page failed.
func (s *HTMLListingScanner) Discover(ctx context.Context, req scanner.Request) ([]scanner.Candidate, error) {
	if len(req.Category.ListingURLs) == 0 {
		return nil, fmt.Errorf("no listing urls for category %s", req.Category.Name)
	}

	var (
		results []scanner.Candidate
		errs    []error
		seen    = map[domain.Fingerprint]struct{}{}
	)
	for _, listing := range req.Category.ListingURLs {
		doc, err := s.fetchDocument(ctx, listing)
		if err != nil {
			s.logger.Warn("listing page unavailable", "url", listing, "error", err)
			errs = append(errs, err)
			continue
		}

		for _, candidate := range extractLinks(doc, listing, s.selectors) {
			fp := domain.URLFingerprint(candidate.URL)
			if _, ok := seen[fp]; ok {
				continue
			}
			seen[fp] = struct{}{}
			candidate.Category = scanner.InferCategory(candidate.URL, req.Category.Name)
			results = append(results, candidate)
			if req.Limit > 0 && len(results) >= req.Limit {
				return results, nil
			}
		}
	}

	if len(results) == 0 && len(errs) == len(req.Category.ListingURLs) {
		return nil, fmt.Errorf("category %s: %w", req.Category.Name, errors.Join(errs...))
	}
	s.logger.Debug("listing scan done", "category", req.Category.Name, "links", len(results))
	return results, nil
}

func (s *HTMLListingScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; NewsPoster/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w: %w", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s: %w", pageURL, resp.Status, domain.ErrNetwork)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func extractLinks(doc *goquery.Document, pageURL string, selectors []string) []scanner.Candidate {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []scanner.Candidate
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			href = strings.TrimSpace(href)
			if !ok || href == "" {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			resolved := base.ResolveReference(ref)
			if resolved.Scheme != "http" && resolved.Scheme != "https" {
				return
			}
			links = append(links, scanner.Candidate{
				URL:   resolved.String(),
				Title: strings.Join(strings.Fields(sel.Text()), " "),
			})
		})
	}
	return links
}
