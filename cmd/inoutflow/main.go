// Command inoutflow watches clusters of addresses for large inflows and
// outflows. It loads configuration, validates it, wires dependencies, sets up
// signal handling, and either streams from the checkpoint or runs one window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/inoutflow/internal/app"
	"github.com/alanyoungcy/inoutflow/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	once := flag.Bool("once", false, "run the -start-block/-end-block window once and exit")
	startBlock := flag.Int64("start-block", 0, "first block, inclusive")
	endBlock := flag.Int64("end-block", 0, "last block, inclusive")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// command-line bounds win over the file
	if *startBlock > 0 {
		cfg.Streamer.StartBlock = *startBlock
	}
	if *endBlock > 0 {
		cfg.Streamer.EndBlock = *endBlock
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("inoutflow starting",
		slog.String("chain", cfg.Chain),
		slog.String("config", *configPath),
		slog.Bool("once", *once),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		err = application.RunOnce(ctx, cfg.Streamer.StartBlock, cfg.Streamer.EndBlock)
	} else {
		err = application.Run(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("inoutflow stopped")
}
