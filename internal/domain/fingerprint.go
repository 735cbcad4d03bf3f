package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint identifies an article for deduplication.
type Fingerprint string

var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"CMP":          {},
}

// NewFingerprint hashes the normalized URL and title. It is a pure function of its inputs.
func NewFingerprint(rawURL, title string) Fingerprint {
	sum := sha256.Sum256([]byte(NormalizeURL(rawURL) + "\n" + NormalizeTitle(title)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// URLFingerprint identifies a URL before its title is known.
func URLFingerprint(rawURL string) Fingerprint {
	return NewFingerprint(rawURL, "")
}

// NormalizeURL lowercases scheme and host, upgrades http, drops default ports,
// fragments and tracking parameters, sorts the query and cleans the path.
// Unparseable input is only trimmed and lowercased.
func NormalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.ToLower(trimmed)
	}

	host := strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	query := parsed.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		if _, tracking := trackingParams[key]; !tracking {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	cleaned := url.Values{}
	for _, key := range keys {
		cleaned[key] = query[key]
	}

	p := parsed.Path
	if p == "" {
		p = "/"
	} else {
		p = path.Clean(p)
		if p != "/" {
			p = strings.TrimRight(p, "/")
		}
	}

	normalized := url.URL{
		Scheme:   "https",
		Host:     host,
		Path:     p,
		RawQuery: cleaned.Encode(),
	}
	return normalized.String()
}

// NormalizeTitle folds case, strips diacritics and collapses whitespace.
func NormalizeTitle(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
