package scanner

import "strings"

// DefaultExclude lists path fragments that never lead to a plain news article.
var DefaultExclude = []string{
	"/live/", "/gallery/", "/video/", "/audio/",
	"/newsletters/", "/membership/", "/help/", "/info/",
	"/privacy/", "/terms/", "/contact/", "/jobs/",
	".json", ".xml", ".css", ".js", ".png", ".jpg",
	"#", "mailto:", "tel:", "/crosswords/", "/games/",
	"/weather/", "/travel/offers/", "/guardian-live-events/",
}

// Filter decides which discovered links are worth fetching.
type Filter struct {
	// Hosts restricts links to these hosts (substring match); empty allows any.
	Hosts []string
	// Include requires at least one fragment to be present; empty allows any.
	Include []string
	Exclude []string
}

// Allow applies the host, exclude and include rules in that order.
func (f Filter) Allow(url string) bool {
	if url == "" {
		return false
	}
	lower := strings.ToLower(url)

	if len(f.Hosts) > 0 && !containsAny(lower, f.Hosts) {
		return false
	}
	if containsAny(lower, f.Exclude) {
		return false
	}
	if len(f.Include) > 0 && !containsAny(url, f.Include) {
		return false
	}
	return true
}

func containsAny(s string, fragments []string) bool {
	for _, fragment := range fragments {
		if fragment != "" && strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

var categoryPaths = []struct {
	fragments []string
	category  string
}{
	{[]string{"/world/"}, "world"},
	{[]string{"/uk-news/"}, "uk"},
	{[]string{"/politics/"}, "politics"},
	{[]string{"/business/"}, "business"},
	{[]string{"/environment/"}, "environment"},
	{[]string{"/science/"}, "science"},
	{[]string{"/technology/"}, "technology"},
	{[]string{"/culture/", "/film/", "/books/"}, "culture"},
	{[]string{"/sport/", "/football/"}, "sport"},
	{[]string{"/society/"}, "society"},
	{[]string{"/education/"}, "education"},
}

// InferCategory guesses a section from the URL path, falling back to fallback.
func InferCategory(url, fallback string) string {
	for _, entry := range categoryPaths {
		if containsAny(url, entry.fragments) {
			return entry.category
		}
	}
	if fallback != "" {
		return fallback
	}
	return "general"
}
