// Package app wires the service together and runs it either as a
// checkpointed streamer or for a single block window.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/inoutflow/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// the cleanup functions run on Close.
type App struct {
	cfg     *config.Config
	base    *slog.Logger
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		base:   logger,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run streams windows from the checkpoint until ctx is cancelled or the
// configured end block is reached.
func (a *App) Run(ctx context.Context) error {
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "starting streamer",
		slog.String("chain", a.cfg.Chain),
		slog.String("checkpoint", a.cfg.Streamer.CheckpointFile),
		slog.Bool("notify_enabled", deps.Notifier.Enabled()),
	)
	return deps.Streamer.Run(ctx)
}

// RunOnce processes blocks [startBlock, endBlock] once without touching the
// checkpoint.
func (a *App) RunOnce(ctx context.Context, startBlock, endBlock int64) error {
	if startBlock <= 0 || endBlock < startBlock {
		return fmt.Errorf("app: invalid window [%d,%d]", startBlock, endBlock)
	}
	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "running single window",
		slog.String("chain", a.cfg.Chain),
		slog.Int64("start_block", startBlock),
		slog.Int64("end_block", endBlock),
	)
	return deps.Orchestrator.RunWindow(ctx, a.cfg.Chain, startBlock, endBlock)
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	a.logger.DebugContext(ctx, "effective configuration", slog.Any("config", config.RedactedConfig(a.cfg)))
	deps, cleanup, err := Wire(ctx, a.cfg, a.base)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
