package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/alanyoungcy/inoutflow/internal/query"
)

// OracleStore reads address labels and function signatures.
type OracleStore struct {
	pool *pgxpool.Pool
}

// NewOracleStore creates an OracleStore on the oracle database.
func NewOracleStore(pool *pgxpool.Pool) *OracleStore {
	return &OracleStore{pool: pool}
}

// AddressLabel returns the ';'-joined labels of address.
func (s *OracleStore) AddressLabel(ctx context.Context, chain, address string) (string, error) {
	st, err := query.AddressLabel(chain, address)
	if err != nil {
		return "", fmt.Errorf("postgres: build label query: %w", err)
	}
	var label *string
	if err := s.pool.QueryRow(ctx, st.SQL, st.Args...).Scan(&label); err != nil {
		return "", fmt.Errorf("postgres: address label %s: %w", address, err)
	}
	if label == nil {
		return "", domain.ErrNotFound
	}
	return *label, nil
}

// FunctionName returns the function name registered for a 4-byte selector.
func (s *OracleStore) FunctionName(ctx context.Context, selector string) (string, error) {
	st := query.FunctionSignature(selector)
	var name string
	err := s.pool.QueryRow(ctx, st.SQL, st.Args...).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: function signature %s: %w", selector, err)
	}
	return name, nil
}

var _ domain.OracleReader = (*OracleStore)(nil)
