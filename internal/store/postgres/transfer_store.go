package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/alanyoungcy/inoutflow/internal/query"
)

// TransferStore reads transfers, transaction context and block bounds from
// the chain data database.
type TransferStore struct {
	pool    *pgxpool.Pool
	builder *query.Builder
}

// NewTransferStore creates a TransferStore rendering SQL with builder.
func NewTransferStore(pool *pgxpool.Pool, builder *query.Builder) *TransferStore {
	return &TransferStore{pool: pool, builder: builder}
}

// FetchTransfers returns the distinct transfers of the window.
func (s *TransferStore) FetchTransfers(ctx context.Context, w domain.Window, f domain.TransferFilter) ([]domain.RawTransfer, error) {
	st, err := s.builder.Transfers(w, f)
	if err != nil {
		return nil, fmt.Errorf("postgres: build transfer query: %w", err)
	}
	rows, err := s.pool.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch transfers %s [%d,%d]: %w", w.Chain, w.StartBlock, w.EndBlock, err)
	}
	defer rows.Close()

	var out []domain.RawTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan transfer: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fetch transfers %s: %w", w.Chain, err)
	}
	return out, nil
}

func scanTransfer(rows pgx.Rows) (domain.RawTransfer, error) {
	var (
		t                            domain.RawTransfer
		from, to, tokenName, tokenAd *string
		value, amount                *string
	)
	if err := rows.Scan(
		&t.BlockTimestamp, &t.BlockNumber, &t.TxHash, &t.TxPos, &t.TraceAddress, &t.LogPos,
		&from, &to, &tokenName, &tokenAd,
		&value, &amount, &t.Status,
	); err != nil {
		return t, err
	}
	t.BlockTimestamp = t.BlockTimestamp.UTC()
	t.From = lower(from)
	t.To = lower(to)
	t.TokenName = deref(tokenName)
	t.TokenAddress = lower(tokenAd)

	var err error
	if t.Value, err = parseDecimal(value); err != nil {
		return t, fmt.Errorf("value of %s: %w", t.TxHash, err)
	}
	if t.ValueAmount, err = parseDecimal(amount); err != nil {
		return t, fmt.Errorf("value_amount of %s: %w", t.TxHash, err)
	}
	return t, nil
}

// FetchTxContexts returns the window's transactions keyed by hash.
func (s *TransferStore) FetchTxContexts(ctx context.Context, w domain.Window) (map[string]domain.TxContext, error) {
	st, err := s.builder.TxContexts(w)
	if err != nil {
		return nil, fmt.Errorf("postgres: build tx query: %w", err)
	}
	rows, err := s.pool.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch txs %s [%d,%d]: %w", w.Chain, w.StartBlock, w.EndBlock, err)
	}
	defer rows.Close()

	out := make(map[string]domain.TxContext)
	for rows.Next() {
		var (
			tx        domain.TxContext
			from, to  *string
			fee, feeA *string
		)
		if err := rows.Scan(&tx.TxHash, &from, &to, &tx.Selector, &tx.Status, &tx.FeeTokenName, &fee, &feeA); err != nil {
			return nil, fmt.Errorf("postgres: scan tx: %w", err)
		}
		tx.From = lower(from)
		tx.To = lower(to)
		if tx.Fee, err = parseOptionalDecimal(fee); err != nil {
			return nil, fmt.Errorf("postgres: tx_fee of %s: %w", tx.TxHash, err)
		}
		if tx.FeeAmount, err = parseOptionalDecimal(feeA); err != nil {
			return nil, fmt.Errorf("postgres: tx_fee_amount of %s: %w", tx.TxHash, err)
		}
		out[tx.TxHash] = tx
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fetch txs %s: %w", w.Chain, err)
	}
	return out, nil
}

// BlockTimeRange returns the earliest and latest block timestamps of the
// range, or domain.ErrNotFound when no block of the range is indexed.
func (s *TransferStore) BlockTimeRange(ctx context.Context, chain string, startBlock, endBlock int64) (time.Time, time.Time, error) {
	st, err := s.builder.BlockTimeRange(chain, startBlock, endBlock)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("postgres: build block range query: %w", err)
	}
	var minTS, maxTS *time.Time
	if err := s.pool.QueryRow(ctx, st.SQL, st.Args...).Scan(&minTS, &maxTS); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("postgres: block time range %s [%d,%d]: %w", chain, startBlock, endBlock, err)
	}
	if minTS == nil || maxTS == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("postgres: blocks %s [%d,%d]: %w", chain, startBlock, endBlock, domain.ErrNotFound)
	}
	return minTS.UTC(), maxTS.UTC(), nil
}

// CurrentBlock returns the highest indexed block number.
func (s *TransferStore) CurrentBlock(ctx context.Context, chain string) (int64, error) {
	st, err := s.builder.CurrentBlock(chain)
	if err != nil {
		return 0, fmt.Errorf("postgres: build current block query: %w", err)
	}
	return s.scanBlock(ctx, st, "current block "+chain)
}

// FirstBlockOfDay returns the lowest block number produced on day (UTC).
func (s *TransferStore) FirstBlockOfDay(ctx context.Context, chain string, day time.Time) (int64, error) {
	st, err := s.builder.FirstBlockOfDay(chain, day)
	if err != nil {
		return 0, fmt.Errorf("postgres: build first block query: %w", err)
	}
	return s.scanBlock(ctx, st, fmt.Sprintf("first block %s %s", chain, day.Format(time.DateOnly)))
}

func (s *TransferStore) scanBlock(ctx context.Context, st query.Statement, what string) (int64, error) {
	var n *int64
	if err := s.pool.QueryRow(ctx, st.SQL, st.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: %s: %w", what, err)
	}
	if n == nil {
		return 0, fmt.Errorf("postgres: %s: %w", what, domain.ErrNotFound)
	}
	return *n, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func lower(s *string) string {
	return strings.ToLower(deref(s))
}

func parseDecimal(s *string) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*s)
}

func parseOptionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ domain.TransferReader = (*TransferStore)(nil)
