// Package config defines the top-level configuration for the inflow/outflow
// alerting service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by INOUTFLOW_* environment variables.
type Config struct {
	Chain      string           `toml:"chain"`
	DataDB     DatabaseConfig   `toml:"data_db"`
	MetaDB     DatabaseConfig   `toml:"meta_db"`
	OracleDB   DatabaseConfig   `toml:"oracle_db"`
	AlertStore AlertStoreConfig `toml:"alert_store"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Price      PriceConfig      `toml:"price"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Cache      CacheConfig      `toml:"cache"`
	Streamer   StreamerConfig   `toml:"streamer"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters. An empty DSN and
// Host on the meta or oracle database means "reuse data_db".
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// IsZero reports whether no connection target was configured.
func (d DatabaseConfig) IsZero() bool {
	return strings.TrimSpace(d.DSN) == "" && d.Host == ""
}

// AlertStoreConfig selects where alert records are persisted.
type AlertStoreConfig struct {
	// Driver is "postgres" (alerts table in meta_db) or "sqlite".
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the alert archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PriceConfig points at the USD price service. RequestsPerMinute, when
// positive and Redis is enabled, is a budget shared by every process.
type PriceConfig struct {
	URL               string   `toml:"url"`
	Timeout           duration `toml:"timeout"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// PipelineConfig holds enrichment parameters. NullValuePolicy decides whether
// transfers without a USD price pass the threshold ("exclude" or "include").
type PipelineConfig struct {
	MetaSchema            string `toml:"meta_schema"`
	Workers               int    `toml:"workers"`
	LabelWorkers          int    `toml:"label_workers"`
	RuleParallelism       int    `toml:"rule_parallelism"`
	DropZeroValue         bool   `toml:"drop_zero_value"`
	DropFailedTransaction bool   `toml:"drop_failed_transaction"`
	NullValuePolicy       string `toml:"null_value_policy"`
	AddressPushDown       int    `toml:"address_push_down"`
	PendingMode           bool   `toml:"pending_mode"`
	PrintSQL              bool   `toml:"print_sql"`
}

// CacheEntryConfig sizes one lookup cache.
type CacheEntryConfig struct {
	TTL      duration `toml:"ttl"`
	Capacity int      `toml:"capacity"`
}

// CacheConfig sizes the four process-wide lookup caches.
type CacheConfig struct {
	CurrentBlock CacheEntryConfig `toml:"current_block"`
	Rules        CacheEntryConfig `toml:"rules"`
	Labels       CacheEntryConfig `toml:"labels"`
	Signatures   CacheEntryConfig `toml:"signatures"`
}

// StreamerConfig drives the reference checkpoint loop.
type StreamerConfig struct {
	CheckpointFile string   `toml:"checkpoint_file"`
	Lag            int64    `toml:"lag"`
	Period         duration `toml:"period"`
	BlockBatchSize int64    `toml:"block_batch_size"`
	StartBlock     int64    `toml:"start_block"`
	EndBlock       int64    `toml:"end_block"`
	StartDate      string   `toml:"start_date"`
	EndDate        string   `toml:"end_date"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WeChatWebhookURL  string   `toml:"wechat_webhook_url"`
	WeChatKey         string   `toml:"wechat_key"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: "ethereum",
		DataDB: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "postgres",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		MetaDB:   DatabaseConfig{Port: 5432, SSLMode: "disable", PoolMaxConns: 5, PoolMinConns: 1},
		OracleDB: DatabaseConfig{Port: 5432, SSLMode: "disable", PoolMaxConns: 5, PoolMinConns: 1},
		AlertStore: AlertStoreConfig{
			Driver:     "postgres",
			SQLitePath: ".priv/alerts.db",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{5 * time.Minute},
			PriceTTL:   duration{time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "inoutflow-alerts",
			ForcePathStyle: true,
		},
		Price: PriceConfig{
			URL:     "http://localhost:8080",
			Timeout: duration{10 * time.Second},
		},
		Pipeline: PipelineConfig{
			MetaSchema:            "web3soc",
			Workers:               5,
			LabelWorkers:          2,
			RuleParallelism:       1,
			DropZeroValue:         true,
			DropFailedTransaction: true,
			NullValuePolicy:       "exclude",
			AddressPushDown:       100,
		},
		Cache: CacheConfig{
			CurrentBlock: CacheEntryConfig{TTL: duration{10 * time.Second}, Capacity: 16},
			Rules:        CacheEntryConfig{TTL: duration{30 * time.Minute}, Capacity: 16},
			Labels:       CacheEntryConfig{TTL: duration{60 * time.Minute}, Capacity: 1024},
			Signatures:   CacheEntryConfig{TTL: duration{30 * time.Minute}, Capacity: 1024},
		},
		Streamer: StreamerConfig{
			CheckpointFile: ".priv/inout-flow.txt",
			Lag:            10,
			Period:         duration{90 * time.Second},
			BlockBatchSize: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"window_failed", "streamer_stopped"},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validNullPolicies = map[string]bool{
	"exclude": true,
	"include": true,
}

var validAlertDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Chain) == "" {
		errs = append(errs, "chain must not be empty")
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	errs = append(errs, c.DataDB.validate("data_db", true)...)
	errs = append(errs, c.MetaDB.validate("meta_db", false)...)
	errs = append(errs, c.OracleDB.validate("oracle_db", false)...)

	if !validAlertDrivers[c.AlertStore.Driver] {
		errs = append(errs, fmt.Sprintf("alert_store: unknown driver %q (valid: postgres, sqlite)", c.AlertStore.Driver))
	}
	if c.AlertStore.Driver == "sqlite" && c.AlertStore.SQLitePath == "" {
		errs = append(errs, "alert_store: sqlite_path must be set for the sqlite driver")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Price.URL == "" {
		errs = append(errs, "price: url must not be empty")
	}
	if c.Price.RequestsPerMinute < 0 {
		errs = append(errs, "price: requests_per_minute must be >= 0")
	}

	if c.Pipeline.MetaSchema == "" {
		errs = append(errs, "pipeline: meta_schema must not be empty")
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, "pipeline: workers must be >= 1")
	}
	if c.Pipeline.LabelWorkers < 1 {
		errs = append(errs, "pipeline: label_workers must be >= 1")
	}
	if c.Pipeline.RuleParallelism < 1 {
		errs = append(errs, "pipeline: rule_parallelism must be >= 1")
	}
	if !validNullPolicies[c.Pipeline.NullValuePolicy] {
		errs = append(errs, fmt.Sprintf("pipeline: unknown null_value_policy %q (valid: exclude, include)", c.Pipeline.NullValuePolicy))
	}
	if c.Pipeline.AddressPushDown < 0 {
		errs = append(errs, "pipeline: address_push_down must be >= 0")
	}

	for _, e := range []struct {
		name string
		cfg  CacheEntryConfig
	}{
		{"current_block", c.Cache.CurrentBlock},
		{"rules", c.Cache.Rules},
		{"labels", c.Cache.Labels},
		{"signatures", c.Cache.Signatures},
	} {
		if e.cfg.TTL.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("cache.%s: ttl must be > 0", e.name))
		}
		if e.cfg.Capacity < 1 {
			errs = append(errs, fmt.Sprintf("cache.%s: capacity must be >= 1", e.name))
		}
	}

	if c.Streamer.Lag < 0 {
		errs = append(errs, "streamer: lag must be >= 0")
	}
	if c.Streamer.BlockBatchSize < 1 {
		errs = append(errs, "streamer: block_batch_size must be >= 1")
	}
	if c.Streamer.EndBlock > 0 && c.Streamer.StartBlock > c.Streamer.EndBlock {
		errs = append(errs, "streamer: start_block must not exceed end_block")
	}
	for _, d := range []struct{ name, val string }{
		{"start_date", c.Streamer.StartDate},
		{"end_date", c.Streamer.EndDate},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d.val); err != nil {
			errs = append(errs, fmt.Sprintf("streamer: %s %q is not YYYY-MM-DD", d.name, d.val))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (d DatabaseConfig) validate(section string, required bool) []string {
	if !required && d.IsZero() {
		return nil
	}
	var errs []string
	if strings.TrimSpace(d.DSN) == "" {
		if d.Host == "" {
			errs = append(errs, section+": host must not be empty (or set dsn)")
		}
		if d.Port <= 0 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("%s: port must be 1-65535, got %d", section, d.Port))
		}
		if d.Database == "" {
			errs = append(errs, section+": database must not be empty")
		}
	}
	if d.PoolMaxConns < 1 {
		errs = append(errs, section+": pool_max_conns must be >= 1")
	}
	if d.PoolMinConns < 0 {
		errs = append(errs, section+": pool_min_conns must be >= 0")
	}
	if d.PoolMinConns > d.PoolMaxConns {
		errs = append(errs, section+": pool_min_conns must not exceed pool_max_conns")
	}
	return errs
}

// ResolvedMetaDB returns meta_db, falling back to data_db when unset.
func (c *Config) ResolvedMetaDB() DatabaseConfig {
	if c.MetaDB.IsZero() {
		return c.DataDB
	}
	return c.MetaDB
}

// ResolvedOracleDB returns oracle_db, falling back to data_db when unset.
func (c *Config) ResolvedOracleDB() DatabaseConfig {
	if c.OracleDB.IsZero() {
		return c.DataDB
	}
	return c.OracleDB
}
