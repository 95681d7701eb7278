package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/inoutflow/internal/domain"
)

// RuleSource returns the cluster rules of a chain.
type RuleSource interface {
	Rules(ctx context.Context, chain string) ([]domain.Rule, error)
}

// OrchestratorConfig holds per-window settings.
type OrchestratorConfig struct {
	DropZeroValue         bool
	DropFailedTransaction bool
	RuleParallelism       int
	// LockTTL bounds how long a window may hold the chain lock.
	LockTTL time.Duration
}

// Orchestrator runs every rule of a chain over one block window.
type Orchestrator struct {
	reader   domain.TransferReader
	rules    RuleSource
	enricher *Enricher
	sink     domain.AlertSink
	archiver domain.AlertArchiver
	locks    domain.LockManager
	cfg      OrchestratorConfig
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver and locks may be nil.
func NewOrchestrator(
	reader domain.TransferReader,
	rules RuleSource,
	enricher *Enricher,
	sink domain.AlertSink,
	archiver domain.AlertArchiver,
	locks domain.LockManager,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.RuleParallelism < 1 {
		cfg.RuleParallelism = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Orchestrator{
		reader:   reader,
		rules:    rules,
		enricher: enricher,
		sink:     sink,
		archiver: archiver,
		locks:    locks,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// RunWindow runs all rules of chain over blocks [startBlock, endBlock]. It
// returns the first rule failure; a nil return means every rule's alerts
// were persisted.
func (o *Orchestrator) RunWindow(ctx context.Context, chain string, startBlock, endBlock int64) error {
	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, domain.WindowLockKey(chain), o.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("pipeline: lock %s window: %w", chain, err)
		}
		defer unlock()
	}

	startTime, endTime, err := o.reader.BlockTimeRange(ctx, chain, startBlock, endBlock)
	if err != nil {
		return fmt.Errorf("pipeline: resolve window time range: %w", err)
	}
	w := domain.Window{
		Chain:      chain,
		StartBlock: startBlock,
		EndBlock:   endBlock,
		StartTime:  startTime,
		EndTime:    endTime,
	}

	rules, err := o.rules.Rules(ctx, chain)
	if err != nil {
		return fmt.Errorf("pipeline: load rules: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.RuleParallelism)
	for _, rule := range rules {
		g.Go(func() error {
			if err := o.runRule(gctx, w, rule); err != nil {
				o.logger.ErrorContext(gctx, "rule failed",
					slog.String("chain", chain),
					slog.String("rule_id", rule.ID),
					slog.Int64("start_block", startBlock),
					slog.Int64("end_block", endBlock),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("pipeline: rule %s: %w", rule.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) runRule(ctx context.Context, w domain.Window, rule domain.Rule) error {
	cluster := rule.Cluster()
	if len(cluster) == 0 {
		o.logger.InfoContext(ctx, "no cluster address, rule skipped",
			slog.String("chain", w.Chain), slog.String("rule_id", rule.ID))
		return nil
	}

	st1 := time.Now()
	rows, err := o.reader.FetchTransfers(ctx, w, domain.TransferFilter{
		Addresses:             cluster.Addresses(),
		DropZeroValue:         o.cfg.DropZeroValue,
		DropFailedTransaction: o.cfg.DropFailedTransaction,
	})
	if errors.Is(err, domain.ErrEmptyCluster) {
		o.logger.InfoContext(ctx, "no cluster address, rule skipped",
			slog.String("chain", w.Chain), slog.String("rule_id", rule.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch transfers: %w", err)
	}

	st2 := time.Now()
	items, err := o.enricher.FilterCluster(ctx, rows, cluster)
	if err != nil {
		return fmt.Errorf("filter cluster: %w", err)
	}
	st3 := time.Now()

	var records []domain.AlertRecord
	if len(items) > 0 {
		txs, err := o.reader.FetchTxContexts(ctx, w)
		if err != nil {
			return fmt.Errorf("fetch tx contexts: %w", err)
		}
		records, err = o.enricher.Enrich(ctx, w.Chain, rule, cluster, items, txs)
		if err != nil {
			return err
		}
	}
	st4 := time.Now()

	var inserted int64
	if len(records) > 0 {
		inserted, err = o.sink.InsertAlerts(ctx, w.Chain, records)
		if err != nil {
			return fmt.Errorf("insert alerts: %w", err)
		}
		if o.archiver != nil {
			if err := o.archiver.ArchiveAlerts(ctx, w, rule.ID, records); err != nil {
				o.logger.WarnContext(ctx, "alert archive failed",
					slog.String("rule_id", rule.ID), slog.String("error", err.Error()))
			}
		}
	}
	st5 := time.Now()

	o.logger.InfoContext(ctx, "exported window",
		slog.String("chain", w.Chain),
		slog.String("rule_id", rule.ID),
		slog.Int64("start_block", w.StartBlock),
		slog.Int64("end_block", w.EndBlock),
		slog.Int("inout_flows", len(rows)),
		slog.Int("items", len(records)),
		slog.Int64("inserted", inserted),
		slog.Duration("total", st5.Sub(st1)),
		slog.Duration("db_read", st2.Sub(st1)),
		slog.Duration("filter", st3.Sub(st2)),
		slog.Duration("enrich", st4.Sub(st3)),
		slog.Duration("export", st5.Sub(st4)),
	)
	return nil
}
