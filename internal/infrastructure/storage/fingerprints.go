package storage

import (
	"context"
	"sync"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// JSONFingerprintStore persists the dedup set as a JSON array.
type JSONFingerprintStore struct {
	path string
	mu   sync.Mutex
}

var _ ports.FingerprintStore = (*JSONFingerprintStore)(nil)

// NewJSONFingerprintStore stores fingerprints at path.
func NewJSONFingerprintStore(path string) *JSONFingerprintStore {
	return &JSONFingerprintStore{path: path}
}

// Load returns nil for a store that was never written.
func (s *JSONFingerprintStore) Load(_ context.Context) ([]domain.Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fps []domain.Fingerprint
	if _, err := readJSON(s.path, &fps); err != nil {
		return nil, err
	}
	return fps, nil
}

// Save replaces the stored set.
func (s *JSONFingerprintStore) Save(_ context.Context, fps []domain.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fps == nil {
		fps = []domain.Fingerprint{}
	}
	return writeJSON(s.path, fps)
}
