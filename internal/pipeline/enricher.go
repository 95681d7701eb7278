// Package pipeline turns a window of raw ledger transfers into alert records
// for each cluster rule and hands them to the alert sink.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

// NullPolicy decides whether a transfer without a USD value passes the
// threshold.
type NullPolicy string

const (
	NullExclude NullPolicy = "exclude"
	NullInclude NullPolicy = "include"
)

// ActionResolver maps a function selector to a readable action name.
type ActionResolver interface {
	Action(ctx context.Context, selector string) (string, error)
}

// LabelResolver returns the oracle label of an address, nil when unlabelled.
type LabelResolver interface {
	Label(ctx context.Context, chain, address string) (*string, error)
}

// Pricer prices transferred tokens and transaction fees. A nil price means
// none is known.
type Pricer interface {
	ValuePrice(ctx context.Context, chain, token string, at time.Time) (*decimal.Decimal, error)
	FeePrice(ctx context.Context, chain string, at time.Time) (*decimal.Decimal, error)
}

// EnricherConfig sizes the worker pools and sets the null-value policy.
type EnricherConfig struct {
	Workers      int
	LabelWorkers int
	NullPolicy   NullPolicy
}

// Enricher runs the per-rule enrichment stages.
type Enricher struct {
	actions ActionResolver
	labels  LabelResolver
	prices  Pricer
	cfg     EnricherConfig
	logger  *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(actions ActionResolver, labels LabelResolver, prices Pricer, cfg EnricherConfig, logger *slog.Logger) *Enricher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.LabelWorkers < 1 {
		cfg.LabelWorkers = 1
	}
	if cfg.NullPolicy == "" {
		cfg.NullPolicy = NullExclude
	}
	return &Enricher{
		actions: actions,
		labels:  labels,
		prices:  prices,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "enricher")),
	}
}

// FilterCluster keeps transfers whose sender or receiver is a cluster member.
func (e *Enricher) FilterCluster(ctx context.Context, rows []domain.RawTransfer, cluster domain.Cluster) ([]domain.RawTransfer, error) {
	return filterStage(ctx, e.cfg.Workers, rows, func(r domain.RawTransfer) bool {
		return cluster.Contains(r.From) || cluster.Contains(r.To)
	})
}

// Enrich runs the remaining stages over cluster-filtered transfers: tx join,
// fee sharing, classification and pricing, threshold, labels,
// normalization and the alert envelope.
func (e *Enricher) Enrich(
	ctx context.Context,
	chain string,
	rule domain.Rule,
	cluster domain.Cluster,
	items []domain.RawTransfer,
	txs map[string]domain.TxContext,
) ([]domain.AlertRecord, error) {
	// fee sharing is counted over the filtered set
	perTx := make(map[string]int, len(items))
	for _, it := range items {
		perTx[it.TxHash]++
	}

	joined, err := runStage(ctx, e.cfg.Workers, items, func(ctx context.Context, r domain.RawTransfer) (domain.EnrichedTransfer, bool, error) {
		tx, ok := txs[r.TxHash]
		if !ok {
			e.logger.WarnContext(ctx, "dropping transfer",
				slog.String("chain", chain),
				slog.String("rule_id", rule.ID),
				slog.String("txhash", r.TxHash),
				slog.String("error", domain.ErrMissingTxContext.Error()),
			)
			return domain.EnrichedTransfer{}, false, nil
		}
		action, err := e.actions.Action(ctx, tx.Selector)
		if err != nil {
			return domain.EnrichedTransfer{}, false, fmt.Errorf("pipeline: resolve action %s: %w", r.TxHash, err)
		}
		return domain.EnrichedTransfer{RawTransfer: r, Chain: chain, Tx: tx, Action: action}, true, nil
	})
	if err != nil {
		return nil, err
	}

	for i := range joined {
		joined[i].FeeSharable = perTx[joined[i].TxHash] > 1
	}

	priced, err := runStage(ctx, e.cfg.Workers, joined, func(ctx context.Context, t domain.EnrichedTransfer) (domain.EnrichedTransfer, bool, error) {
		if err := e.classifyAndPrice(ctx, cluster, &t); err != nil {
			return t, false, err
		}
		return t, true, nil
	})
	if err != nil {
		return nil, err
	}

	passing, err := filterStage(ctx, e.cfg.Workers, priced, func(t domain.EnrichedTransfer) bool {
		return e.meetsThreshold(t.ValueUSD, rule.Threshold)
	})
	if err != nil {
		return nil, err
	}

	labelled, err := e.label(ctx, chain, passing)
	if err != nil {
		return nil, err
	}

	return runStage(ctx, e.cfg.LabelWorkers, labelled, func(_ context.Context, t domain.EnrichedTransfer) (domain.AlertRecord, bool, error) {
		return domain.AlertRecord{Type: domain.AlertType, RuleID: rule.ID, Data: t.Normalize()}, true, nil
	})
}

func (e *Enricher) classifyAndPrice(ctx context.Context, cluster domain.Cluster, t *domain.EnrichedTransfer) error {
	t.Direction = domain.Classify(cluster.Contains(t.From), cluster.Contains(t.To))
	t.FromTag = cluster.Tag(t.From)
	t.ToTag = cluster.Tag(t.To)
	t.Link = domain.TxLink(t.Chain, t.TxHash)

	p, err := e.prices.ValuePrice(ctx, t.Chain, t.TokenAddress, t.BlockTimestamp)
	if err != nil {
		return fmt.Errorf("pipeline: price %s on %s: %w", t.TokenAddress, t.Chain, err)
	}
	if p != nil {
		usd := t.ValueAmount.Mul(*p)
		t.Price = p
		t.ValueUSD = &usd
	}

	if t.Tx.FeeAmount == nil {
		return nil
	}
	fp, err := e.prices.FeePrice(ctx, t.Chain, t.BlockTimestamp)
	if err != nil {
		return fmt.Errorf("pipeline: fee price on %s: %w", t.Chain, err)
	}
	if fp != nil {
		usd := t.Tx.FeeAmount.Mul(*fp)
		t.TxFeeUSD = &usd
	}
	return nil
}

// meetsThreshold reports whether valueUSD >= threshold. A missing value passes
// only under NullInclude.
func (e *Enricher) meetsThreshold(valueUSD *decimal.Decimal, threshold decimal.Decimal) bool {
	if valueUSD == nil {
		return e.cfg.NullPolicy == NullInclude
	}
	return valueUSD.GreaterThanOrEqual(threshold)
}

// label warms the label cache with every distinct address first, then
// attaches sender and receiver labels.
func (e *Enricher) label(ctx context.Context, chain string, items []domain.EnrichedTransfer) ([]domain.EnrichedTransfer, error) {
	seen := make(map[string]bool, 2*len(items))
	var addrs []string
	for _, t := range items {
		for _, a := range [2]string{t.From, t.To} {
			if a != "" && !seen[a] {
				seen[a] = true
				addrs = append(addrs, a)
			}
		}
	}

	if _, err := runStage(ctx, e.cfg.LabelWorkers, addrs, func(ctx context.Context, a string) (struct{}, bool, error) {
		if _, err := e.labels.Label(ctx, chain, a); err != nil {
			return struct{}{}, false, fmt.Errorf("pipeline: label %s: %w", a, err)
		}
		return struct{}{}, false, nil
	}); err != nil {
		return nil, err
	}

	return runStage(ctx, e.cfg.LabelWorkers, items, func(ctx context.Context, t domain.EnrichedTransfer) (domain.EnrichedTransfer, bool, error) {
		var err error
		if t.From != "" {
			if t.FromLabel, err = e.labels.Label(ctx, chain, t.From); err != nil {
				return t, false, fmt.Errorf("pipeline: label %s: %w", t.From, err)
			}
		}
		if t.To != "" {
			if t.ToLabel, err = e.labels.Label(ctx, chain, t.To); err != nil {
				return t, false, fmt.Errorf("pipeline: label %s: %w", t.To, err)
			}
		}
		return t, true, nil
	})
}
