package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

const (
	fingerprintTable = "fingerprints"
	insertBatch      = 500
)

// SQLiteFingerprintStore persists the dedup set into a SQLite table.
type SQLiteFingerprintStore struct {
	db *sql.DB
}

var _ ports.FingerprintStore = (*SQLiteFingerprintStore)(nil)

// OpenSQLite opens (or creates) the database file and its schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteFingerprintStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", domain.ErrStore, err)
	}
	db.SetMaxOpenConns(1)

	store := NewSQLiteFingerprintStore(db)
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteFingerprintStore wires a sql.DB implementation.
func NewSQLiteFingerprintStore(db *sql.DB) *SQLiteFingerprintStore {
	return &SQLiteFingerprintStore{db: db}
}

func (r *SQLiteFingerprintStore) migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS fingerprints (
                  fingerprint TEXT PRIMARY KEY,
                  first_seen  TIMESTAMP NOT NULL
              )`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: create schema: %w", domain.ErrStore, err)
	}
	return nil
}

// Load returns every stored fingerprint.
func (r *SQLiteFingerprintStore) Load(ctx context.Context) ([]domain.Fingerprint, error) {
	rows, err := sq.Select("fingerprint").
		From(fingerprintTable).
		OrderBy("fingerprint").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: query fingerprints: %w", domain.ErrStore, err)
	}

	var result []domain.Fingerprint
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: scan fingerprint: %w", domain.ErrStore, err)
		}
		result = append(result, domain.Fingerprint(fp))
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("%w: rows iteration: %w", domain.ErrStore, rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("%w: close rows: %w", domain.ErrStore, closeErr)
	}

	return result, nil
}

// Save inserts fingerprints that are not stored yet. Existing rows keep their first_seen.
func (r *SQLiteFingerprintStore) Save(ctx context.Context, fps []domain.Fingerprint) error {
	if len(fps) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrStore, err)
	}

	now := time.Now().UTC()
	for start := 0; start < len(fps); start += insertBatch {
		end := min(start+insertBatch, len(fps))
		insert := sq.Insert(fingerprintTable).
			Columns("fingerprint", "first_seen").
			Suffix("ON CONFLICT (fingerprint) DO NOTHING")
		for _, fp := range fps[start:end] {
			insert = insert.Values(string(fp), now)
		}
		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: insert fingerprints: %w", domain.ErrStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrStore, err)
	}
	return nil
}

// Close releases the database handle.
func (r *SQLiteFingerprintStore) Close() error {
	return r.db.Close()
}
