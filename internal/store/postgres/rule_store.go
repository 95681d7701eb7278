package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/alanyoungcy/inoutflow/internal/query"
)

// RuleStore reads cluster rules from the metadata database.
type RuleStore struct {
	pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

// NewRuleStore creates a RuleStore reading <schema>.rules.
func NewRuleStore(pool *pgxpool.Pool, schema string, logger *slog.Logger) *RuleStore {
	return &RuleStore{
		pool:   pool,
		schema: schema,
		logger: logger.With(slog.String("component", "rule_store")),
	}
}

// ListRules returns the chain's rules. Rules whose detail cannot be parsed
// are logged and skipped.
func (s *RuleStore) ListRules(ctx context.Context, chain string) ([]domain.Rule, error) {
	st, err := query.Rules(s.schema, chain)
	if err != nil {
		return nil, fmt.Errorf("postgres: build rules query: %w", err)
	}
	rows, err := s.pool.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rules %s: %w", chain, err)
	}
	defer rows.Close()

	var rules []domain.Rule
	for rows.Next() {
		var id, detail string
		if err := rows.Scan(&id, &detail); err != nil {
			return nil, fmt.Errorf("postgres: scan rule: %w", err)
		}
		r, err := domain.ParseRule(id, chain, []byte(detail))
		if err != nil {
			s.logger.WarnContext(ctx, "skipping invalid rule",
				slog.String("rule_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rules %s: %w", chain, err)
	}
	return rules, nil
}

var _ domain.RuleReader = (*RuleStore)(nil)
