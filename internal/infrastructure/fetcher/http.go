// Package fetcher downloads source documents over HTTP.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; NewsPoster/1.0)"
	maxBodyBytes     = 5 << 20
)

// HTTPFetcher implements ports.SourceFetcher with net/http.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

var _ ports.SourceFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; per-request timeouts come from Fetch.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch downloads url within timeout. Transport errors, timeouts, 429 and 5xx
// wrap domain.ErrNetwork; other non-2xx statuses are permanent failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (ports.FetchResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ports.FetchResult{}, domain.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ports.FetchResult{}, fmt.Errorf("request %s: %w", url, err)
		}
		return ports.FetchResult{}, fmt.Errorf("request %s: %w: %w", url, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return ports.FetchResult{StatusCode: resp.StatusCode}, fmt.Errorf("%s returned %s: %w", url, resp.Status, domain.ErrNetwork)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return ports.FetchResult{StatusCode: resp.StatusCode}, domain.Permanent(fmt.Errorf("%s returned %s: %w", url, resp.Status, domain.ErrNetwork))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return ports.FetchResult{}, fmt.Errorf("read %s: %w: %w", url, domain.ErrNetwork, err)
	}

	return ports.FetchResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
