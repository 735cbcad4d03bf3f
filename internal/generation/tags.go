package generation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTagRunes bounds a single hashtag, including the leading #. Longer tags are
// discarded rather than cut.
const MaxTagRunes = 30

var hashtagExpr = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

var genericTags = []string{"#News", "#Headlines", "#Today"}

// ParseTags pulls hashtags out of a model answer, dropping case-insensitive
// duplicates and overlong tags and keeping at most max.
func ParseTags(answer string, max int) []string {
	found := hashtagExpr.FindAllString(answer, -1)
	if len(found) == 0 {
		// Some models answer with bare comma separated words.
		for _, word := range strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == '\n' }) {
			if len(strings.Fields(word)) > 3 {
				continue
			}
			if tag := Hashtag(word); tag != "" {
				found = append(found, tag)
			}
		}
	}
	return uniqueTags(found, max)
}

// FallbackTags derives a tag set from topics and the category without any
// network call. The result has between min and max tags.
func FallbackTags(topics []string, category string, min, max int) []string {
	candidates := make([]string, 0, len(topics)+len(genericTags)+1)
	for _, topic := range topics {
		candidates = append(candidates, Hashtag(topic))
	}
	candidates = append(candidates, Hashtag(category))
	tags := uniqueTags(candidates, max)
	for _, generic := range genericTags {
		if len(tags) >= min {
			break
		}
		tags = uniqueTags(append(tags, generic), max)
	}
	return tags
}

// Hashtag turns a phrase into a CamelCase hashtag, or "" if nothing is left.
func Hashtag(phrase string) string {
	words := strings.FieldsFunc(phrase, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('#')
	for _, word := range words {
		runes := []rune(word)
		b.WriteRune(unicode.ToUpper(runes[0]))
		b.WriteString(string(runes[1:]))
	}
	return b.String()
}

func uniqueTags(tags []string, max int) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		key := strings.ToLower(tag)
		if tag == "" || tag == "#" || seen[key] || utf8.RuneCountInString(tag) > MaxTagRunes {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
