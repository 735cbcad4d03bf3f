package crawl

import (
	"math"
	"sort"

	"NewsPoster/internal/domain"
)

const topTopicsPerCategory = 5

// CategoryStatistics summarises the crawled articles per category.
func CategoryStatistics(articles []domain.AnalyzedArticle) map[string]domain.CategoryStats {
	type accumulator struct {
		words     int
		stats     domain.CategoryStats
		topics    map[string]int
		firstSeen map[string]int
	}
	byCategory := map[string]*accumulator{}

	for _, item := range articles {
		acc, ok := byCategory[item.Article.Category]
		if !ok {
			acc = &accumulator{
				stats:     domain.CategoryStats{SentimentCounts: map[domain.Sentiment]int{}},
				topics:    map[string]int{},
				firstSeen: map[string]int{},
			}
			byCategory[item.Article.Category] = acc
		}
		acc.stats.Articles++
		acc.words += item.Article.WordCount
		acc.stats.SentimentCounts[item.Analysis.Sentiment]++
		for _, topic := range item.Analysis.Topics {
			if _, seen := acc.firstSeen[topic]; !seen {
				acc.firstSeen[topic] = len(acc.firstSeen)
			}
			acc.topics[topic]++
		}
	}

	out := make(map[string]domain.CategoryStats, len(byCategory))
	for name, acc := range byCategory {
		acc.stats.AvgWordCount = math.Round(float64(acc.words)/float64(acc.stats.Articles)*10) / 10

		topics := make([]string, 0, len(acc.topics))
		for topic := range acc.topics {
			topics = append(topics, topic)
		}
		sort.Slice(topics, func(i, j int) bool {
			if acc.topics[topics[i]] != acc.topics[topics[j]] {
				return acc.topics[topics[i]] > acc.topics[topics[j]]
			}
			return acc.firstSeen[topics[i]] < acc.firstSeen[topics[j]]
		})
		if len(topics) > topTopicsPerCategory {
			topics = topics[:topTopicsPerCategory]
		}
		acc.stats.TopTopics = topics
		out[name] = acc.stats
	}
	return out
}
