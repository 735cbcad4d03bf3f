// Package dedup tracks fingerprints of content already processed across runs.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// Cache is the in-memory fingerprint set backed by a persistent store.
// Writers hold the exclusive lock, so readers never observe a write in progress.
type Cache struct {
	mu     sync.RWMutex
	seen   map[domain.Fingerprint]struct{}
	added  int
	store  ports.FingerprintStore
	logger *slog.Logger
}

// New returns an empty cache. A nil store makes the cache memory-only.
func New(store ports.FingerprintStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		seen:   map[domain.Fingerprint]struct{}{},
		store:  store,
		logger: logger,
	}
}

// Load replaces the cache contents with the backing store. An unreadable or
// corrupt store leaves the cache empty and only logs a warning.
func (c *Cache) Load(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = map[domain.Fingerprint]struct{}{}
	c.added = 0
	if c.store == nil {
		return
	}

	fingerprints, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("dedup store unreadable, starting empty", "error", err)
		return
	}
	for _, fp := range fingerprints {
		c.seen[fp] = struct{}{}
	}
	c.logger.Debug("dedup cache loaded", "fingerprints", len(c.seen))
}

// Has reports whether the fingerprint was seen before.
func (c *Cache) Has(fp domain.Fingerprint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[fp]
	return ok
}

// Record marks fingerprints as seen.
func (c *Cache) Record(fps ...domain.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fp := range fps {
		if _, ok := c.seen[fp]; !ok {
			c.seen[fp] = struct{}{}
			c.added++
		}
	}
}

// Claim records fp and reports true only for the first caller that sees it.
func (c *Cache) Claim(fp domain.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[fp]; ok {
		return false
	}
	c.seen[fp] = struct{}{}
	c.added++
	return true
}

// Len is the number of fingerprints held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// Added is the number of fingerprints recorded since the last Load.
func (c *Cache) Added() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.added
}

// Flush writes the full set to the backing store.
func (c *Cache) Flush(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	c.mu.RLock()
	snapshot := make([]domain.Fingerprint, 0, len(c.seen))
	for fp := range c.seen {
		snapshot = append(snapshot, fp)
	}
	c.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })
	if err := c.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("flush dedup cache: %w", err)
	}
	c.logger.Debug("dedup cache flushed", "fingerprints", len(snapshot))
	return nil
}
