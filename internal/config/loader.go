package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every override variable.
const envPrefix = "INOUTFLOW_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies INOUTFLOW_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Chain, "CHAIN")

	// ── Databases ──
	applyDatabaseEnv(&cfg.DataDB, "DATA_DB")
	applyDatabaseEnv(&cfg.MetaDB, "META_DB")
	applyDatabaseEnv(&cfg.OracleDB, "ORACLE_DB")

	// ── Alert store ──
	setStr(&cfg.AlertStore.Driver, "ALERT_STORE_DRIVER")
	setStr(&cfg.AlertStore.SQLitePath, "ALERT_STORE_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.PriceTTL, "REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Price ──
	setStr(&cfg.Price.URL, "PRICE_URL")
	setDuration(&cfg.Price.Timeout, "PRICE_TIMEOUT")
	setInt(&cfg.Price.RequestsPerMinute, "PRICE_REQUESTS_PER_MINUTE")

	// ── Pipeline ──
	setStr(&cfg.Pipeline.MetaSchema, "PIPELINE_META_SCHEMA")
	setInt(&cfg.Pipeline.Workers, "PIPELINE_WORKERS")
	setInt(&cfg.Pipeline.LabelWorkers, "PIPELINE_LABEL_WORKERS")
	setInt(&cfg.Pipeline.RuleParallelism, "PIPELINE_RULE_PARALLELISM")
	setBool(&cfg.Pipeline.DropZeroValue, "PIPELINE_DROP_ZERO_VALUE")
	setBool(&cfg.Pipeline.DropFailedTransaction, "PIPELINE_DROP_FAILED_TRANSACTION")
	setStr(&cfg.Pipeline.NullValuePolicy, "PIPELINE_NULL_VALUE_POLICY")
	setInt(&cfg.Pipeline.AddressPushDown, "PIPELINE_ADDRESS_PUSH_DOWN")
	setBool(&cfg.Pipeline.PendingMode, "PIPELINE_PENDING_MODE")
	setBool(&cfg.Pipeline.PrintSQL, "PIPELINE_PRINT_SQL")

	// ── Streamer ──
	setStr(&cfg.Streamer.CheckpointFile, "STREAMER_CHECKPOINT_FILE")
	setInt64(&cfg.Streamer.Lag, "STREAMER_LAG")
	setDuration(&cfg.Streamer.Period, "STREAMER_PERIOD")
	setInt64(&cfg.Streamer.BlockBatchSize, "STREAMER_BLOCK_BATCH_SIZE")
	setInt64(&cfg.Streamer.StartBlock, "STREAMER_START_BLOCK")
	setInt64(&cfg.Streamer.EndBlock, "STREAMER_END_BLOCK")
	setStr(&cfg.Streamer.StartDate, "STREAMER_START_DATE")
	setStr(&cfg.Streamer.EndDate, "STREAMER_END_DATE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WeChatWebhookURL, "NOTIFY_WECHAT_WEBHOOK_URL")
	setStr(&cfg.Notify.WeChatKey, "NOTIFY_WECHAT_KEY")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

func applyDatabaseEnv(db *DatabaseConfig, section string) {
	setStr(&db.DSN, section+"_DSN")
	setStr(&db.Host, section+"_HOST")
	setInt(&db.Port, section+"_PORT")
	setStr(&db.Database, section+"_DATABASE")
	setStr(&db.User, section+"_USER")
	setStr(&db.Password, section+"_PASSWORD")
	setStr(&db.SSLMode, section+"_SSL_MODE")
	setInt(&db.PoolMaxConns, section+"_POOL_MAX_CONNS")
	setInt(&db.PoolMinConns, section+"_POOL_MIN_CONNS")
	setBool(&db.RunMigrations, section+"_RUN_MIGRATIONS")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func lookup(key string) string {
	return os.Getenv(envPrefix + key)
}

func setStr(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := lookup(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
