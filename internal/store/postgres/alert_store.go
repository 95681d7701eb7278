package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/alanyoungcy/inoutflow/internal/query"
	"github.com/alanyoungcy/inoutflow/internal/store"
)

// AlertStore writes alert records to <schema>.alerts.
type AlertStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewAlertStore creates an AlertStore for schema.
func NewAlertStore(pool *pgxpool.Pool, schema string) (*AlertStore, error) {
	if err := query.ValidateIdent(schema); err != nil {
		return nil, fmt.Errorf("postgres: alert schema: %w", err)
	}
	return &AlertStore{pool: pool, table: pgx.Identifier{schema, "alerts"}.Sanitize()}, nil
}

// InsertAlerts inserts records in ledger order, skipping keys that already
// exist, and returns the number of rows written.
func (s *AlertStore) InsertAlerts(ctx context.Context, chain string, records []domain.AlertRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows, err := store.AlertRows(chain, records)
	if err != nil {
		return 0, fmt.Errorf("postgres: prepare alerts: %w", err)
	}

	stmt := `INSERT INTO ` + s.table + ` (
			id, block_timestamp, block_number, hash, rule_name, chain, scope, output, labels
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (block_timestamp, hash, rule_name) DO NOTHING`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(stmt,
			uuid.NewString(), r.BlockTimestamp, r.BlockNumber, r.Hash, r.RuleName,
			r.Chain, r.Scope, r.Output, string(r.Labels),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert alert batch item %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

var _ domain.AlertSink = (*AlertStore)(nil)
