package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// ExtractorConfig tunes the selector extractor.
type ExtractorConfig struct {
	TitleSelectors []string
	BodySelectors  []string
	// MinParagraphChars drops short fragments such as captions and bylines.
	MinParagraphChars int
	// Paragraphs stops collecting once this many paragraphs were found.
	Paragraphs   int
	MinBodyChars int
	MaxBodyChars int
	// Boilerplate paragraphs containing any of these (lowercase) are dropped.
	Boilerplate []string
	// NoReadability turns off the go-readability fallback for unknown layouts.
	NoReadability bool
}

// DefaultExtractorConfig targets Guardian article pages.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		TitleSelectors: []string{
			`h1[data-gu-name="headline"]`,
			`h1.content__headline`,
			`.content__main h1`,
			`h1.headline`,
			`h1`,
			`.article-header h1`,
		},
		BodySelectors: []string{
			`.article-body-commercial-selector p`,
			`.content__article-body p`,
			`[data-gu-name="body"] p`,
			`.article-body p`,
			`.content__main-column p`,
			`div[data-component="body"] p`,
			`.prose p`,
		},
		MinParagraphChars: 20,
		Paragraphs:        5,
		MinBodyChars:      100,
		MaxBodyChars:      3000,
		Boilerplate:       []string{"advertisement", "subscribe", "premium"},
	}
}

// SelectorExtractor pulls article fields out of HTML with CSS selectors and
// falls back to readability when the selectors find too little text.
type SelectorExtractor struct {
	cfg ExtractorConfig
}

var _ ports.ContentExtractor = (*SelectorExtractor)(nil)

// NewSelectorExtractor fills zero values from DefaultExtractorConfig.
func NewSelectorExtractor(cfg ExtractorConfig) *SelectorExtractor {
	def := DefaultExtractorConfig()
	if len(cfg.TitleSelectors) == 0 {
		cfg.TitleSelectors = def.TitleSelectors
	}
	if len(cfg.BodySelectors) == 0 {
		cfg.BodySelectors = def.BodySelectors
	}
	if cfg.MinParagraphChars <= 0 {
		cfg.MinParagraphChars = def.MinParagraphChars
	}
	if cfg.Paragraphs <= 0 {
		cfg.Paragraphs = def.Paragraphs
	}
	if cfg.MinBodyChars <= 0 {
		cfg.MinBodyChars = def.MinBodyChars
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = def.MaxBodyChars
	}
	if cfg.Boilerplate == nil {
		cfg.Boilerplate = def.Boilerplate
	}
	return &SelectorExtractor{cfg: cfg}
}

// Extract returns the title, body and publication time of an article page.
func (e *SelectorExtractor) Extract(pageURL string, html []byte) (domain.ArticleFields, error) {
	if len(html) == 0 {
		return domain.ArticleFields{}, fmt.Errorf("%w: empty document", domain.ErrExtraction)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.ArticleFields{}, fmt.Errorf("%w: parse document: %w", domain.ErrExtraction, err)
	}

	fields := domain.ArticleFields{
		Title:       e.title(doc),
		Body:        e.body(doc),
		PublishedAt: publishedAt(doc),
	}

	if utf8.RuneCountInString(fields.Body) < e.cfg.MinBodyChars && !e.cfg.NoReadability {
		if fallback, err := e.readable(pageURL, html); err == nil {
			fields.Body = fallback.Body
			if fields.Title == "" {
				fields.Title = fallback.Title
			}
			if fields.PublishedAt.IsZero() {
				fields.PublishedAt = fallback.PublishedAt
			}
		}
	}

	if n := utf8.RuneCountInString(fields.Body); n < e.cfg.MinBodyChars {
		return domain.ArticleFields{}, fmt.Errorf("%w: content too short (%d chars)", domain.ErrExtraction, n)
	}
	if fields.Title == "" {
		fields.Title = "No title found"
	}
	fields.Body = cut(fields.Body, e.cfg.MaxBodyChars)
	return fields, nil
}

func (e *SelectorExtractor) title(doc *goquery.Document) string {
	for _, selector := range e.cfg.TitleSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := collapse(sel.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func (e *SelectorExtractor) body(doc *goquery.Document) string {
	var parts []string
	seen := map[string]bool{}
	for _, selector := range e.cfg.BodySelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := collapse(sel.Text())
			if utf8.RuneCountInString(text) <= e.cfg.MinParagraphChars || seen[text] || e.boilerplate(text) {
				return
			}
			seen[text] = true
			parts = append(parts, text)
		})
		if len(parts) >= e.cfg.Paragraphs {
			break
		}
	}
	return strings.Join(parts, " ")
}

func (e *SelectorExtractor) boilerplate(text string) bool {
	if strings.HasPrefix(text, "Guardian") {
		return true
	}
	lower := strings.ToLower(text)
	for _, marker := range e.cfg.Boilerplate {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (e *SelectorExtractor) readable(pageURL string, html []byte) (domain.ArticleFields, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}
	article, err := readability.FromReader(bytes.NewReader(html), parsed)
	if err != nil {
		return domain.ArticleFields{}, fmt.Errorf("readability: %w", err)
	}

	fields := domain.ArticleFields{
		Title: collapse(article.Title),
		Body:  collapse(article.TextContent),
	}
	if article.PublishedTime != nil {
		fields.PublishedAt = article.PublishedTime.UTC()
	}
	return fields, nil
}

var publishedSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[name="article:published_time"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`time[datetime]`, "datetime"},
}

func publishedAt(doc *goquery.Document) time.Time {
	for _, candidate := range publishedSelectors {
		value, ok := doc.Find(candidate.selector).First().Attr(candidate.attr)
		if !ok {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z07:00", "2006-01-02"} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func cut(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
