package generation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const ellipsis = "…"

// Compose fits body and tags into limit characters. Tags are kept whole:
// trailing tags are dropped only when the tags alone cannot fit, and the body
// is truncated to the space that remains.
func Compose(body string, tags []string, limit int) (string, []string) {
	body = strings.TrimSpace(body)
	if limit <= 0 {
		return body, tags
	}

	kept := append([]string(nil), tags...)
	for len(kept) > 0 && utf8.RuneCountInString(strings.Join(kept, " ")) > limit {
		kept = kept[:len(kept)-1]
	}

	budget := limit
	if len(kept) > 0 {
		budget -= utf8.RuneCountInString(strings.Join(kept, " "))
		if body != "" {
			budget-- // separator
		}
	}
	return Truncate(body, budget), kept
}

// Truncate shortens text to at most limit runes, preferring a word boundary
// and marking the cut with an ellipsis.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit == 1 {
		return ellipsis
	}

	runes := []rune(text)[:limit-1]
	cut := len(runes)
	for i := len(runes) - 1; i > len(runes)/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	trimmed := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if trimmed == "" {
		trimmed = string(runes)
	}
	return trimmed + ellipsis
}

// normalizedBody is the key used to detect near-identical posts in a run.
func normalizedBody(body string) string {
	fields := strings.FieldsFunc(strings.ToLower(body), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
