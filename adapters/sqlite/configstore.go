package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/volplane/volplane/ports"
)

// ConfigStore implements ports.ConfigStore using SQLite. The committed
// configuration is a single opaque JSON document; the version column is
// the optimistic concurrency counter.
type ConfigStore struct {
	db *DB
}

// NewConfigStore creates a new SQLite configuration store.
func NewConfigStore(db *DB) *ConfigStore {
	return &ConfigStore{db: db}
}

// Load retrieves the committed document and its version.
func (s *ConfigStore) Load(ctx context.Context) ([]byte, uint64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT body, version FROM configuration WHERE id = 1
	`)
	var body string
	var version uint64
	if err := row.Scan(&body, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ports.ErrNotFound
		}
		return nil, 0, fmt.Errorf("load configuration: %w", err)
	}
	return []byte(body), version, nil
}

// Save commits the document if the stored version still equals expected.
// The compare and the write happen in one transaction, so a concurrent
// commit either wins cleanly or surfaces as ErrVersionConflict.
func (s *ConfigStore) Save(ctx context.Context, doc []byte, expected uint64) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	err = tx.QueryRowContext(ctx, `SELECT version FROM configuration WHERE id = 1`).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read current version: %w", err)
	}
	if current != expected {
		return 0, fmt.Errorf("%w: stored %d, expected %d", ports.ErrVersionConflict, current, expected)
	}

	next := expected + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO configuration (id, body, version, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			body = excluded.body,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, string(doc), next)
	if err != nil {
		return 0, fmt.Errorf("write configuration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit configuration: %w", err)
	}
	return next, nil
}

var _ ports.ConfigStore = (*ConfigStore)(nil)
