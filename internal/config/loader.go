package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEMGR_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEMGR_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TRADEMGR_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TRADEMGR_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TRADEMGR_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.SafeAddress, "TRADEMGR_WALLET_SAFE_ADDRESS")

	// ── Feed ──
	setStr(&cfg.Feed.URL, "TRADEMGR_FEED_URL")
	setDuration(&cfg.Feed.ReconnectInitial, "TRADEMGR_FEED_RECONNECT_INITIAL")
	setDuration(&cfg.Feed.ReconnectMax, "TRADEMGR_FEED_RECONNECT_MAX")
	setFloat64(&cfg.Feed.ReconnectMultiplier, "TRADEMGR_FEED_RECONNECT_MULTIPLIER")
	setDuration(&cfg.Feed.PingInterval, "TRADEMGR_FEED_PING_INTERVAL")
	setBool(&cfg.Feed.AllowOneSidedBook, "TRADEMGR_FEED_ALLOW_ONE_SIDED_BOOK")

	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "TRADEMGR_BROKER_BASE_URL")
	setInt(&cfg.Broker.ChainID, "TRADEMGR_BROKER_CHAIN_ID")
	setInt(&cfg.Broker.SignatureType, "TRADEMGR_BROKER_SIGNATURE_TYPE")
	setDuration(&cfg.Broker.Timeout, "TRADEMGR_BROKER_TIMEOUT")

	// ── Engine ──
	setDuration(&cfg.Engine.ReconcileInterval, "TRADEMGR_ENGINE_RECONCILE_INTERVAL")
	setDuration(&cfg.Engine.PositionRefreshInterval, "TRADEMGR_ENGINE_POSITION_REFRESH_INTERVAL")
	setFloat64(&cfg.Engine.SlippageStopLoss, "TRADEMGR_ENGINE_SLIPPAGE_STOP_LOSS")
	setFloat64(&cfg.Engine.SlippageTakeProfit, "TRADEMGR_ENGINE_SLIPPAGE_TAKE_PROFIT")
	setDuration(&cfg.Engine.EvaluationEventRate, "TRADEMGR_ENGINE_EVALUATION_EVENT_RATE")
	setDuration(&cfg.Engine.ArchiveRetention, "TRADEMGR_ENGINE_ARCHIVE_RETENTION")
	setDuration(&cfg.Engine.ArchiveInterval, "TRADEMGR_ENGINE_ARCHIVE_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEMGR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEMGR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEMGR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEMGR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEMGR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEMGR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEMGR_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEMGR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEMGR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEMGR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEMGR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEMGR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEMGR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEMGR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEMGR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEMGR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEMGR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEMGR_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEMGR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEMGR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEMGR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEMGR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEMGR_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEMGR_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEMGR_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEMGR_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEMGR_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEMGR_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEMGR_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEMGR_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "TRADEMGR_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
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
