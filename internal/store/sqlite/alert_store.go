// Package sqlite provides a file-backed alert sink for local runs. It keeps
// the same (block_timestamp, hash, rule_name) uniqueness as the PostgreSQL
// alerts table, using INSERT OR IGNORE.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/alanyoungcy/inoutflow/internal/store"
)

const createAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id              TEXT NOT NULL,
    block_timestamp TEXT NOT NULL,
    block_number    INTEGER NOT NULL,
    hash            TEXT NOT NULL,
    rule_name       TEXT NOT NULL,
    chain           TEXT NOT NULL,
    scope           TEXT NOT NULL,
    output          TEXT,
    labels          TEXT,
    created_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (block_timestamp, hash, rule_name)
);
CREATE INDEX IF NOT EXISTS alerts_rule_name_idx ON alerts (rule_name);
`

// AlertStore is a SQLite-backed domain.AlertSink.
type AlertStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" keeps it
// in process memory.
func Open(ctx context.Context, path string) (*AlertStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create dir %s: %w", dir, err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createAlerts); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create alerts table: %w", err)
	}
	return &AlertStore{db: db}, nil
}

// Close closes the database.
func (s *AlertStore) Close() error {
	return s.db.Close()
}

// InsertAlerts inserts records in ledger order inside one transaction and
// returns how many were new.
func (s *AlertStore) InsertAlerts(ctx context.Context, chain string, records []domain.AlertRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows, err := store.AlertRows(chain, records)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare alerts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO alerts
		(id, block_timestamp, block_number, hash, rule_name, chain, scope, output, labels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i, r := range rows {
		res, err := stmt.ExecContext(ctx,
			uuid.NewString(), domain.FormatTime(r.BlockTimestamp), r.BlockNumber, r.Hash, r.RuleName,
			r.Chain, r.Scope, r.Output, string(r.Labels),
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: insert alert %d: %w", i, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("sqlite: rows affected: %w", err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// Count returns the number of stored alerts.
func (s *AlertStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count alerts: %w", err)
	}
	return n, nil
}

var _ domain.AlertSink = (*AlertStore)(nil)
