// Package analysis derives sentiment, urgency and topic signals from article text.
package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// MaxTopics caps the ranked key-phrase list.
const MaxTopics = 5

var positiveWords = set(
	"agree", "agreement", "achieve", "award", "benefit", "boost", "breakthrough", "celebrate",
	"cure", "gain", "good", "grow", "growth", "hope", "improve", "improved", "improvement",
	"innovative", "peace", "praise", "progress", "protect", "recover", "recovery", "record",
	"relief", "rescue", "rise", "safe", "success", "successful", "support", "win", "won",
)

var negativeWords = set(
	"accident", "attack", "ban", "collapse", "conflict", "crash", "crisis", "cut", "damage",
	"dead", "death", "decline", "disaster", "drop", "fail", "failure", "fear", "fire", "flood",
	"fraud", "injured", "kill", "killed", "loss", "protest", "recession", "risk", "scandal",
	"shortage", "strike", "threat", "violence", "war", "warning", "worst",
)

var urgencyMarkers = set(
	"alert", "breaking", "emergency", "evacuate", "evacuation", "immediately", "imminent",
	"just", "latest", "live", "now", "outbreak", "urgent", "warning", "developing", "today",
)

var negators = set("not", "no", "never", "without", "hardly")

var stopWords = set(
	"a", "about", "after", "again", "against", "all", "also", "an", "and", "any", "are", "as",
	"at", "be", "because", "been", "before", "being", "but", "by", "can", "could", "did", "do",
	"does", "for", "from", "had", "has", "have", "he", "her", "his", "how", "if", "in", "into",
	"is", "it", "its", "more", "most", "mr", "mrs", "ms", "new", "no", "not", "of", "on", "one",
	"or", "our", "out", "over", "said", "says", "she", "so", "some", "such", "than", "that",
	"the", "their", "them", "then", "there", "these", "they", "this", "those", "through", "to",
	"two", "under", "up", "was", "we", "were", "what", "when", "where", "which", "while", "who",
	"will", "with", "would", "year", "years", "you", "your",
)

// Lexical is a deterministic, dictionary-driven analyzer. Given the same text
// and the same clock reading it always returns the same result.
type Lexical struct {
	now func() time.Time
}

var _ ports.Analyzer = (*Lexical)(nil)

// NewLexical builds a lexical analyzer; a nil clock uses time.Now.
func NewLexical(now func() time.Time) *Lexical {
	if now == nil {
		now = time.Now
	}
	return &Lexical{now: now}
}

// Analyze scores the article title and body.
func (l *Lexical) Analyze(ctx context.Context, article domain.Article) (domain.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %w", domain.ErrAnalysis, err)
	}
	if strings.TrimSpace(article.Body) == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: empty article text", domain.ErrAnalysis)
	}

	titleTokens := tokenize(article.Title)
	bodyTokens := tokenize(article.Body)

	return domain.AnalysisResult{
		Sentiment: classifySentiment(append(append([]string{}, titleTokens...), bodyTokens...)),
		Urgency:   l.urgency(titleTokens, bodyTokens, article.PublishedAt),
		Topics:    rankTopics(titleTokens, bodyTokens, MaxTopics),
	}, nil
}

func classifySentiment(tokens []string) domain.Sentiment {
	pos, neg := 0, 0
	for i, tok := range tokens {
		negated := i > 0 && negators[tokens[i-1]]
		switch {
		case positiveWords[tok]:
			if negated {
				neg++
			} else {
				pos++
			}
		case negativeWords[tok]:
			if negated {
				pos++
			} else {
				neg++
			}
		}
	}
	if pos+neg == 0 {
		return domain.SentimentNeutral
	}
	polarity := float64(pos-neg) / float64(pos+neg)
	switch {
	case polarity > 0.2:
		return domain.SentimentPositive
	case polarity < -0.2:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

func (l *Lexical) urgency(title, body []string, publishedAt time.Time) float64 {
	markers := 0.0
	for _, tok := range title {
		if urgencyMarkers[tok] {
			markers += 2
		}
	}
	for _, tok := range body {
		if urgencyMarkers[tok] {
			markers++
		}
	}
	lexical := math.Min(1, markers*0.15)

	recency := 0.0
	if !publishedAt.IsZero() {
		age := l.now().Sub(publishedAt)
		switch {
		case age < 0 || age <= 6*time.Hour:
			recency = 1
		case age <= 24*time.Hour:
			recency = 0.6
		case age <= 72*time.Hour:
			recency = 0.3
		}
	}

	score := 0.6*lexical + 0.4*recency
	return math.Round(math.Max(0, math.Min(1, score))*1000) / 1000
}

type topicScore struct {
	phrase string
	score  float64
	first  int
}

func rankTopics(title, body []string, limit int) []string {
	scores := map[string]*topicScore{}
	position := 0
	bump := func(phrase string, weight float64) {
		entry, ok := scores[phrase]
		if !ok {
			entry = &topicScore{phrase: phrase, first: position}
			scores[phrase] = entry
		}
		entry.score += weight
		position++
	}

	for i, tokens := range [][]string{title, body} {
		weight := 1.0
		if i == 0 {
			weight = 2
		}
		var prev string
		for _, tok := range tokens {
			if !isTopicToken(tok) {
				prev = ""
				continue
			}
			bump(tok, weight)
			if prev != "" {
				bump(prev+" "+tok, weight*1.5)
			}
			prev = tok
		}
	}

	ranked := make([]*topicScore, 0, len(scores))
	for _, entry := range scores {
		// A bigram seen once is noise.
		if strings.Contains(entry.phrase, " ") && entry.score < 3 {
			continue
		}
		ranked = append(ranked, entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].first != ranked[j].first {
			return ranked[i].first < ranked[j].first
		}
		return ranked[i].phrase < ranked[j].phrase
	})

	topics := make([]string, 0, limit)
	for _, entry := range ranked {
		if len(topics) == limit {
			break
		}
		if coveredBy(entry.phrase, topics) {
			continue
		}
		topics = append(topics, entry.phrase)
	}
	return topics
}

func coveredBy(phrase string, chosen []string) bool {
	for _, c := range chosen {
		if c == phrase {
			return true
		}
		for _, word := range strings.Fields(c) {
			if word == phrase {
				return true
			}
		}
	}
	return false
}

func isTopicToken(tok string) bool {
	if len([]rune(tok)) < 3 || stopWords[tok] {
		return false
	}
	for _, r := range tok {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
