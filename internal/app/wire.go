package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/inoutflow/internal/blob/s3"
	"github.com/alanyoungcy/inoutflow/internal/cache"
	"github.com/alanyoungcy/inoutflow/internal/cache/redis"
	"github.com/alanyoungcy/inoutflow/internal/config"
	"github.com/alanyoungcy/inoutflow/internal/domain"
	"github.com/alanyoungcy/inoutflow/internal/notify"
	"github.com/alanyoungcy/inoutflow/internal/pipeline"
	"github.com/alanyoungcy/inoutflow/internal/price"
	"github.com/alanyoungcy/inoutflow/internal/query"
	"github.com/alanyoungcy/inoutflow/internal/store/postgres"
	"github.com/alanyoungcy/inoutflow/internal/store/sqlite"
	"github.com/alanyoungcy/inoutflow/internal/streamer"
)

// Dependencies bundles the wired components. It is constructed by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	Transfers    domain.TransferReader
	Lookups      *cache.Lookups
	Orchestrator *pipeline.Orchestrator
	Streamer     *streamer.Streamer
	Notifier     *notify.Notifier
}

// Wire constructs every dependency from cfg and returns them together with a
// cleanup function releasing connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// --- PostgreSQL: data, meta and oracle share a pool when unset ---
	dataClient, err := openPostgres(ctx, "data", cfg.DataDB, cfg.Pipeline.PrintSQL, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, dataClient.Close)

	metaClient := dataClient
	if !cfg.MetaDB.IsZero() {
		if metaClient, err = openPostgres(ctx, "meta", cfg.MetaDB, cfg.Pipeline.PrintSQL, logger); err != nil {
			return fail(err)
		}
		closers = append(closers, metaClient.Close)
	}
	oracleClient := dataClient
	if !cfg.OracleDB.IsZero() {
		if oracleClient, err = openPostgres(ctx, "oracle", cfg.OracleDB, cfg.Pipeline.PrintSQL, logger); err != nil {
			return fail(err)
		}
		closers = append(closers, oracleClient.Close)
	}

	if cfg.ResolvedMetaDB().RunMigrations {
		if err := metaClient.RunMigrations(ctx, cfg.Pipeline.MetaSchema); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}

	builder := query.NewBuilder(cfg.Pipeline.PendingMode, cfg.Pipeline.AddressPushDown)
	transfers := postgres.NewTransferStore(dataClient.Pool(), builder)
	rules := postgres.NewRuleStore(metaClient.Pool(), cfg.Pipeline.MetaSchema, logger)
	oracle := postgres.NewOracleStore(oracleClient.Pool())

	lookups := cache.NewLookups(transfers, rules, oracle, cache.Sizes{
		CurrentBlock: cacheSize(cfg.Cache.CurrentBlock),
		Rules:        cacheSize(cfg.Cache.Rules),
		Labels:       cacheSize(cfg.Cache.Labels),
		Signatures:   cacheSize(cfg.Cache.Signatures),
	})

	// --- Alert sink ---
	var sink domain.AlertSink
	switch cfg.AlertStore.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.AlertStore.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = s.Close() })
		sink = s
	default:
		s, err := postgres.NewAlertStore(metaClient.Pool(), cfg.Pipeline.MetaSchema)
		if err != nil {
			return fail(fmt.Errorf("wire: alert store: %w", err))
		}
		sink = s
	}

	// --- Redis (optional): window lock, shared price memo, request budget ---
	var (
		locks       domain.LockManager
		priceOpts   []price.Option
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		locks = redis.NewLockManager(redisClient)
		priceOpts = append(priceOpts, price.WithSharedCache(redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)))
		if cfg.Price.RequestsPerMinute > 0 {
			priceOpts = append(priceOpts, price.WithThrottle(redis.NewRateLimiter(redisClient, cfg.Price.RequestsPerMinute, time.Minute)))
		}
	}

	prices := price.NewLookup(price.NewClient(cfg.Price.URL, cfg.Price.Timeout.Duration), logger, priceOpts...)

	// --- S3 (optional): alert archive ---
	var archiver domain.AlertArchiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket not reachable, archive uploads may fail", slog.String("error", err.Error()))
		}
		archiver = s3blob.NewAlertArchiver(s3blob.NewWriter(s3Client))
		logger.Info("alert archive enabled", slog.String("bucket", s3Client.Bucket()))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WeChatWebhookURL != "" {
		senders = append(senders, notify.NewWeChatSender(cfg.Notify.WeChatWebhookURL, cfg.Notify.WeChatKey))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Pipeline ---
	enricher := pipeline.NewEnricher(lookups, lookups, prices, pipeline.EnricherConfig{
		Workers:      cfg.Pipeline.Workers,
		LabelWorkers: cfg.Pipeline.LabelWorkers,
		NullPolicy:   pipeline.NullPolicy(cfg.Pipeline.NullValuePolicy),
	}, logger)
	orchestrator := pipeline.NewOrchestrator(transfers, lookups, enricher, sink, archiver, locks, pipeline.OrchestratorConfig{
		DropZeroValue:         cfg.Pipeline.DropZeroValue,
		DropFailedTransaction: cfg.Pipeline.DropFailedTransaction,
		RuleParallelism:       cfg.Pipeline.RuleParallelism,
		LockTTL:               cfg.Redis.LockTTL.Duration,
	}, logger)

	ckpt, err := streamer.NewFileCheckpoint(cfg.Streamer.CheckpointFile)
	if err != nil {
		return fail(err)
	}
	var reporter domain.Notifier
	if notifier.Enabled() {
		reporter = notifier
	}
	str := streamer.New(streamer.Config{
		Chain:          cfg.Chain,
		Lag:            cfg.Streamer.Lag,
		BlockBatchSize: cfg.Streamer.BlockBatchSize,
		Period:         cfg.Streamer.Period.Duration,
		StartBlock:     cfg.Streamer.StartBlock,
		EndBlock:       cfg.Streamer.EndBlock,
		StartDate:      cfg.Streamer.StartDate,
		EndDate:        cfg.Streamer.EndDate,
	}, ckpt, orchestrator, blockSource{lookups: lookups, transfers: transfers}, reporter, logger)

	return &Dependencies{
		Transfers:    transfers,
		Lookups:      lookups,
		Orchestrator: orchestrator,
		Streamer:     str,
		Notifier:     notifier,
	}, cleanup, nil
}

func openPostgres(ctx context.Context, name string, db config.DatabaseConfig, traceSQL bool, logger *slog.Logger) (*postgres.Client, error) {
	c, err := postgres.New(ctx, postgres.ClientConfig{
		Name:     name,
		DSN:      db.DSN,
		Host:     db.Host,
		Port:     db.Port,
		Database: db.Database,
		User:     db.User,
		Password: db.Password,
		SSLMode:  db.SSLMode,
		MaxConns: db.PoolMaxConns,
		MinConns: db.PoolMinConns,
		TraceSQL: traceSQL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("wire: postgres %s: %w", name, err)
	}
	return c, nil
}

func cacheSize(c config.CacheEntryConfig) cache.Size {
	return cache.Size{TTL: c.TTL.Duration, Capacity: c.Capacity}
}

// blockSource serves the head through the current-block cache and day
// boundaries straight from the data store.
type blockSource struct {
	lookups   *cache.Lookups
	transfers domain.TransferReader
}

func (b blockSource) CurrentBlock(ctx context.Context, chain string) (int64, error) {
	return b.lookups.CurrentBlock(ctx, chain)
}

func (b blockSource) FirstBlockOfDay(ctx context.Context, chain string, day time.Time) (int64, error) {
	return b.transfers.FirstBlockOfDay(ctx, chain, day)
}
