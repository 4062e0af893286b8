package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/openmarket/trademanager/internal/blob/s3"
	"github.com/openmarket/trademanager/internal/broker"
	"github.com/openmarket/trademanager/internal/cache/redis"
	"github.com/openmarket/trademanager/internal/config"
	"github.com/openmarket/trademanager/internal/crypto"
	"github.com/openmarket/trademanager/internal/domain"
	"github.com/openmarket/trademanager/internal/feed"
	"github.com/openmarket/trademanager/internal/notify"
	"github.com/openmarket/trademanager/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the engine needs to run.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	RuleStore  *postgres.RuleStore
	EventStore *postgres.EventStore

	// Cache / coordination
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RedisClient *redis.Client

	// External integrations
	Broker domain.Broker
	Feed   *feed.Feed

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver
	S3Client   *s3blob.Client

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.RedisClient = redisClient

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	signalBus := redis.NewSignalBus(redisClient)
	deps.SignalBus = signalBus

	deps.RuleStore = postgres.NewRuleStore(pool, signalBus)
	deps.EventStore = postgres.NewEventStore(pool)

	// --- S3 blob storage ---
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
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })
	deps.S3Client = s3Client

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.BlobReader = s3blob.NewReader(s3Client)
	deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.RuleStore, deps.EventStore)

	// --- Wallet signer and broker ---
	privateKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(privateKey, cfg.Broker.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet signer: %w", err)
	}
	deps.Broker = broker.New(cfg.Broker.BaseURL, signer, cfg.Broker.Timeout.Duration, logger)

	// --- Market feed ---
	deps.Feed = feed.New(cfg.Feed.URL, logger,
		feed.WithAllowOneSidedBook(cfg.Feed.AllowOneSidedBook),
		feed.WithReconnectPolicy(cfg.Feed.ReconnectInitial.Duration, cfg.Feed.ReconnectMax.Duration, cfg.Feed.ReconnectMultiplier),
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
