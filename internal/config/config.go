// Package config defines the top-level configuration for the rule engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEMGR_* environment
// variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Feed     FeedConfig     `toml:"feed"`
	Broker   BrokerConfig   `toml:"broker"`
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials used to sign orders. The
// private key can be supplied directly (PrivateKey) or as an encrypted key
// file (EncryptedKeyPath + KeyPassword); PrivateKey takes precedence.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	SafeAddress      string `toml:"safe_address"`
}

// FeedConfig holds the market data websocket's connection and reconnect
// parameters.
type FeedConfig struct {
	URL                 string   `toml:"url"`
	ReconnectInitial    duration `toml:"reconnect_initial"`
	ReconnectMax        duration `toml:"reconnect_max"`
	ReconnectMultiplier float64  `toml:"reconnect_multiplier"`
	PingInterval        duration `toml:"ping_interval"`
	AllowOneSidedBook   bool     `toml:"allow_one_sided_book"`
}

// BrokerConfig holds the venue REST API endpoint, chain parameters, and the
// per-call timeout applied to every Broker request.
type BrokerConfig struct {
	BaseURL       string   `toml:"base_url"`
	ChainID       int      `toml:"chain_id"`
	SignatureType int      `toml:"signature_type"`
	Timeout       duration `toml:"timeout"`
}

// EngineConfig holds the rule-evaluation and execution tuning parameters.
type EngineConfig struct {
	ReconcileInterval       duration `toml:"reconcile_interval"`
	PositionRefreshInterval duration `toml:"position_refresh_interval"`
	SlippageStopLoss        float64  `toml:"slippage_stop_loss"`
	SlippageTakeProfit      float64  `toml:"slippage_take_profit"`
	EvaluationEventRate     duration `toml:"evaluation_event_rate"`
	ArchiveRetention        duration `toml:"archive_retention"`
	ArchiveInterval         duration `toml:"archive_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters, used for cold
// archival of trimmed Trades and Events.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP dashboard server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials and the event types
// that should be forwarded to them.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			ReconnectInitial:    duration{1 * time.Second},
			ReconnectMax:        duration{60 * time.Second},
			ReconnectMultiplier: 2.0,
			PingInterval:        duration{30 * time.Second},
			AllowOneSidedBook:   true,
		},
		Broker: BrokerConfig{
			ChainID:       137,
			SignatureType: 2,
			Timeout:       duration{30 * time.Second},
		},
		Engine: EngineConfig{
			ReconcileInterval:       duration{5 * time.Second},
			PositionRefreshInterval: duration{30 * time.Second},
			SlippageStopLoss:        0.02,
			SlippageTakeProfit:      0.01,
			EvaluationEventRate:     duration{10 * time.Second},
			ArchiveRetention:        duration{90 * 24 * time.Hour},
			ArchiveInterval:         duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "trademanager-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"RULE_FAILED", "ACTION_EXECUTED"},
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

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}

	if c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty")
	}
	if c.Feed.ReconnectInitial.Duration <= 0 {
		errs = append(errs, "feed: reconnect_initial must be > 0")
	}
	if c.Feed.ReconnectMax.Duration < c.Feed.ReconnectInitial.Duration {
		errs = append(errs, "feed: reconnect_max must be >= reconnect_initial")
	}
	if c.Feed.ReconnectMultiplier <= 1 {
		errs = append(errs, "feed: reconnect_multiplier must be > 1")
	}

	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}
	if c.Broker.ChainID <= 0 {
		errs = append(errs, "broker: chain_id must be positive")
	}
	if c.Broker.SignatureType != 1 && c.Broker.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("broker: signature_type must be 1 (proxy) or 2 (Safe), got %d", c.Broker.SignatureType))
	}
	if c.Broker.Timeout.Duration <= 0 {
		errs = append(errs, "broker: timeout must be > 0")
	}

	if c.Engine.ReconcileInterval.Duration <= 0 {
		errs = append(errs, "engine: reconcile_interval must be > 0")
	}
	if c.Engine.PositionRefreshInterval.Duration <= 0 {
		errs = append(errs, "engine: position_refresh_interval must be > 0")
	}
	if c.Engine.SlippageStopLoss < 0 || c.Engine.SlippageStopLoss >= 1 {
		errs = append(errs, "engine: slippage_stop_loss must be in [0,1)")
	}
	if c.Engine.SlippageTakeProfit < 0 || c.Engine.SlippageTakeProfit >= 1 {
		errs = append(errs, "engine: slippage_take_profit must be in [0,1)")
	}
	if c.Engine.EvaluationEventRate.Duration <= 0 {
		errs = append(errs, "engine: evaluation_event_rate must be > 0")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
