package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

// EventLog appends run events as JSON lines.
type EventLog struct {
	path string
	mu   sync.Mutex
}

var _ ports.EventLog = (*EventLog)(nil)

// NewEventLog writes to path, creating parent directories on first append.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Append writes events in one go.
func (l *EventLog) Append(_ context.Context, events ...ports.Event) error {
	if len(events) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: create log dir: %w", domain.ErrStore, err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open event log: %w", domain.ErrStore, err)
	}

	enc := json.NewEncoder(f)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: append event: %w", domain.ErrStore, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close event log: %w", domain.ErrStore, err)
	}
	return nil
}
