package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/dutchescrow/internal/auction"
	s3blob "github.com/alanyoungcy/dutchescrow/internal/blob/s3"
	"github.com/alanyoungcy/dutchescrow/internal/cache/redis"
	"github.com/alanyoungcy/dutchescrow/internal/config"
	"github.com/alanyoungcy/dutchescrow/internal/crypto"
	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/notify"
	"github.com/alanyoungcy/dutchescrow/internal/server/handler"
	"github.com/alanyoungcy/dutchescrow/internal/store/memory"
	"github.com/alanyoungcy/dutchescrow/internal/store/postgres"
)

// Dependencies bundles every backend the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Controller *auction.Controller
	Signer     *crypto.Signer
	Clock      domain.Clock

	// Stores
	Ledger      domain.Ledger
	Settlements domain.SettlementStore
	AuditStore  domain.AuditStore

	// Coordination; AuctionCache is nil without Redis.
	AuctionCache domain.AuctionCache
	LockManager  domain.LockManager
	ReplayGuard  domain.ReplayGuard
	RateLimiter  domain.RateLimiter
	SignalBus    domain.SignalBus

	// Blob storage; nil unless s3.enabled.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// HealthChecks are reported by /api/health, keyed by backend name.
	HealthChecks map[string]handler.BackendCheck
}

// Wire constructs the concrete backends selected by cfg and returns them
// together with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	programID, err := domain.ParsePubkey(cfg.Program.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: program id: %w", err)
	}

	deps := &Dependencies{
		Controller: auction.NewController(programID, auction.RentPolicy{
			LamportsPerByte: cfg.Program.LamportsPerByte,
			BaseLamports:    cfg.Program.BaseLamports,
		}),
		Clock:        domain.SystemClock{},
		HealthChecks: make(map[string]handler.BackendCheck),
	}

	// --- Node key ---
	signer, ephemeral, err := crypto.LoadNodeKey(crypto.NodeKeyConfig{
		RawPrivateKey:    cfg.NodeKey.PrivateKey,
		EncryptedKeyPath: cfg.NodeKey.EncryptedKeyPath,
		Password:         cfg.NodeKey.Password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: node key: %w", err)
	}
	if ephemeral {
		logger.Warn("wire: no node key configured, receipts are signed with an ephemeral key",
			slog.String("node", signer.Identity().String()),
		)
	}
	deps.Signer = signer

	// --- Ledger and stores ---
	if cfg.UsesPostgres() {
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
		deps.Ledger = postgres.NewLedger(pool)
		deps.Settlements = postgres.NewSettlementStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	} else {
		deps.Ledger = memory.NewLedger()
		deps.Settlements = memory.NewSettlementStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.AuctionCache = redis.NewAuctionCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.ReplayGuard = redis.NewReplayGuard(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		deps.LockManager = memory.NewLockManager()
		deps.ReplayGuard = memory.NewReplayGuard()
		deps.RateLimiter = memory.NewRateLimiter()
		deps.SignalBus = memory.NewSignalBus(0)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		objects := s3blob.NewObjects(s3Client)
		deps.Archiver = s3blob.NewArchiver(objects, objects, deps.Settlements, deps.AuditStore, logger)
		deps.HealthChecks["s3"] = s3Client.Health
	}

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
