// Package streamer moves the window orchestrator forward from a file
// checkpoint, keeping a fixed lag behind the chain head.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/alanyoungcy/inoutflow/internal/notify"
)

// Checkpoint persists the last synced block.
type Checkpoint interface {
	Load() (block int64, ok bool, err error)
	Save(block int64) error
}

// WindowRunner processes one inclusive block window.
type WindowRunner interface {
	RunWindow(ctx context.Context, chain string, startBlock, endBlock int64) error
}

// BlockSource reports chain progress.
type BlockSource interface {
	CurrentBlock(ctx context.Context, chain string) (int64, error)
	FirstBlockOfDay(ctx context.Context, chain string, day time.Time) (int64, error)
}

// Config controls pacing and bounds. StartBlock and EndBlock are unset when
// <= 0. StartDate (inclusive) and EndDate (exclusive) are YYYY-MM-DD days in
// UTC.
type Config struct {
	Chain          string
	Lag            int64
	BlockBatchSize int64
	Period         time.Duration
	StartBlock     int64
	EndBlock       int64
	StartDate      string
	EndDate        string
}

// Streamer repeatedly runs the next window and advances the checkpoint only
// after the window succeeded.
type Streamer struct {
	cfg      Config
	ckpt     Checkpoint
	runner   WindowRunner
	blocks   BlockSource
	notifier domain.Notifier
	logger   *slog.Logger
}

// New creates a Streamer. notifier may be nil.
func New(cfg Config, ckpt Checkpoint, runner WindowRunner, blocks BlockSource, notifier domain.Notifier, logger *slog.Logger) *Streamer {
	if cfg.BlockBatchSize < 1 {
		cfg.BlockBatchSize = 1
	}
	if cfg.Period <= 0 {
		cfg.Period = 90 * time.Second
	}
	return &Streamer{
		cfg:      cfg,
		ckpt:     ckpt,
		runner:   runner,
		blocks:   blocks,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "streamer"), slog.String("chain", cfg.Chain)),
	}
}

// Run streams until ctx ends or the configured end block is synced. It
// returns nil when the end block was reached.
func (s *Streamer) Run(ctx context.Context) (err error) {
	defer func() {
		reason := "end block reached"
		if err != nil {
			reason = err.Error()
		}
		s.report(ctx, notify.EventStreamerStopped, "streamer stopped", fmt.Sprintf("chain %s: %s", s.cfg.Chain, reason))
	}()

	last, err := s.initialBlock(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("streamer starting",
		slog.Int64("last_synced_block", last),
		slog.Int64("end_block", s.cfg.EndBlock),
		slog.Int64("lag", s.cfg.Lag),
		slog.Int64("block_batch_size", s.cfg.BlockBatchSize),
	)

	for {
		if s.cfg.EndBlock > 0 && last >= s.cfg.EndBlock {
			s.logger.Info("end block reached", slog.Int64("last_synced_block", last))
			return nil
		}

		synced, err := s.Step(ctx, last)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("window failed",
				slog.Int64("start_block", last+1),
				slog.String("error", err.Error()),
			)
			s.report(ctx, notify.EventWindowFailed, "window failed",
				fmt.Sprintf("chain %s from block %d: %v", s.cfg.Chain, last+1, err))
		}

		if err == nil && synced > last {
			last = synced
			continue
		}

		timer := time.NewTimer(s.cfg.Period)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Step runs the window after last and saves its end block. It returns last
// unchanged when the head (minus lag) has not moved past it.
func (s *Streamer) Step(ctx context.Context, last int64) (int64, error) {
	current, err := s.blocks.CurrentBlock(ctx, s.cfg.Chain)
	if err != nil {
		return last, fmt.Errorf("streamer: current block: %w", err)
	}
	target := min(current-s.cfg.Lag, last+s.cfg.BlockBatchSize)
	if s.cfg.EndBlock > 0 {
		target = min(target, s.cfg.EndBlock)
	}
	if target <= last {
		return last, nil
	}

	started := time.Now()
	if err := s.runner.RunWindow(ctx, s.cfg.Chain, last+1, target); err != nil {
		return last, fmt.Errorf("streamer: window [%d,%d]: %w", last+1, target, err)
	}
	if err := s.ckpt.Save(target); err != nil {
		return last, err
	}
	s.logger.Info("window synced",
		slog.Int64("start_block", last+1),
		slog.Int64("end_block", target),
		slog.Int64("current_block", current),
		slog.Duration("elapsed", time.Since(started)),
	)
	return target, nil
}

// initialBlock picks the block before the first window: the checkpoint if
// present, otherwise the first block of StartDate, StartBlock, or the lagged
// head, in that order. A set EndDate fixes the end block.
func (s *Streamer) initialBlock(ctx context.Context) (int64, error) {
	if s.cfg.EndBlock <= 0 && s.cfg.EndDate != "" {
		first, err := s.firstBlockOfDay(ctx, s.cfg.EndDate)
		if err != nil {
			return 0, err
		}
		s.cfg.EndBlock = first - 1
	}

	last, ok, err := s.ckpt.Load()
	if err != nil {
		return 0, err
	}
	if ok {
		return last, nil
	}

	switch {
	case s.cfg.StartDate != "" && s.cfg.EndDate != "":
		first, err := s.firstBlockOfDay(ctx, s.cfg.StartDate)
		if err != nil {
			return 0, err
		}
		s.logger.Info("daily export", slog.String("start_date", s.cfg.StartDate), slog.String("end_date", s.cfg.EndDate))
		return first - 1, nil
	case s.cfg.StartBlock > 0:
		return s.cfg.StartBlock - 1, nil
	default:
		current, err := s.blocks.CurrentBlock(ctx, s.cfg.Chain)
		if err != nil {
			return 0, fmt.Errorf("streamer: current block: %w", err)
		}
		return current - s.cfg.Lag, nil
	}
}

func (s *Streamer) firstBlockOfDay(ctx context.Context, date string) (int64, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("streamer: parse date %q: %w", date, err)
	}
	first, err := s.blocks.FirstBlockOfDay(ctx, s.cfg.Chain, day)
	if err != nil {
		return 0, fmt.Errorf("streamer: first block of %s: %w", date, err)
	}
	return first, nil
}

func (s *Streamer) report(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.Notify(nctx, event, title, message); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("operator notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
