package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// RedisFingerprintStore keeps the dedup set in a Redis set so several hosts can share it.
type RedisFingerprintStore struct {
	client *redis.Client
	key    string
}

var _ ports.FingerprintStore = (*RedisFingerprintStore)(nil)

// NewRedisFingerprintStore uses key as the set name.
func NewRedisFingerprintStore(client *redis.Client, key string) *RedisFingerprintStore {
	if key == "" {
		key = "newsposter:fingerprints"
	}
	return &RedisFingerprintStore{client: client, key: key}
}

// Load returns every member of the set.
func (s *RedisFingerprintStore) Load(ctx context.Context) ([]domain.Fingerprint, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrStore, s.key, err)
	}
	fps := make([]domain.Fingerprint, 0, len(members))
	for _, member := range members {
		fps = append(fps, domain.Fingerprint(member))
	}
	return fps, nil
}

// Save adds fingerprints to the set in batches.
func (s *RedisFingerprintStore) Save(ctx context.Context, fps []domain.Fingerprint) error {
	if len(fps) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for start := 0; start < len(fps); start += insertBatch {
		end := min(start+insertBatch, len(fps))
		members := make([]any, 0, end-start)
		for _, fp := range fps[start:end] {
			members = append(members, string(fp))
		}
		pipe.SAdd(ctx, s.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrStore, s.key, err)
	}
	return nil
}
