package domain

import "time"

// Sentiment is the three-way polarity assigned by the content analyzer.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ParseSentiment maps free-form labels onto the three known values.
func ParseSentiment(value string) (Sentiment, bool) {
	switch Sentiment(value) {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return Sentiment(value), true
	default:
		return SentimentNeutral, false
	}
}

// ArticleFields is what a content extractor pulls out of a raw page.
type ArticleFields struct {
	Title       string
	Body        string
	Category    string
	PublishedAt time.Time
}

// Article is a successfully extracted news item. It is immutable once built.
type Article struct {
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	Category    string      `json:"category"`
	PublishedAt time.Time   `json:"published_at"`
	WordCount   int         `json:"word_count"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// NewArticle builds an Article from extracted fields and stamps its fingerprint.
// A category reported by the extractor wins over the one inferred at discovery.
func NewArticle(url, category string, fields ArticleFields) Article {
	if fields.Category != "" {
		category = fields.Category
	}
	return Article{
		URL:         url,
		Title:       fields.Title,
		Body:        fields.Body,
		Category:    category,
		PublishedAt: fields.PublishedAt,
		WordCount:   countWords(fields.Body),
		Fingerprint: NewFingerprint(url, fields.Title),
	}
}

// AnalysisResult carries derived signals for a single article.
type AnalysisResult struct {
	Sentiment Sentiment `json:"sentiment"`
	Urgency   float64   `json:"urgency"`
	Topics    []string  `json:"topics"`
	// Degraded marks a default result produced after an analysis failure.
	Degraded bool `json:"degraded,omitempty"`
}

// DefaultUrgency is the score used when nothing better is known.
const DefaultUrgency = 0.5

// DefaultAnalysis is the neutral result substituted when analysis fails.
func DefaultAnalysis() AnalysisResult {
	return AnalysisResult{
		Sentiment: SentimentNeutral,
		Urgency:   DefaultUrgency,
		Topics:    []string{},
		Degraded:  true,
	}
}

// AnalyzedArticle pairs an article with the analysis attached to it.
type AnalyzedArticle struct {
	Article  Article        `json:"article"`
	Analysis AnalysisResult `json:"analysis"`
}

func countWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
