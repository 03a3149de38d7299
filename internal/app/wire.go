package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/auth"
	s3blob "github.com/alanyoungcy/predictmarket/internal/blob/s3"
	"github.com/alanyoungcy/predictmarket/internal/breaker"
	"github.com/alanyoungcy/predictmarket/internal/cache/redis"
	"github.com/alanyoungcy/predictmarket/internal/config"
	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/oracle"
	"github.com/alanyoungcy/predictmarket/internal/resolution"
	"github.com/alanyoungcy/predictmarket/internal/service"
	"github.com/alanyoungcy/predictmarket/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore  domain.MarketStore
	BreakerStore domain.BreakerStore
	AuditStore   domain.AuditStore
	Ledger       *postgres.Ledger

	// Caches
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Core
	Breaker  *breaker.Breaker
	Engine   *resolution.Engine
	Markets  *service.MarketService
	Disputes *service.DisputeService
	BreakerS *service.BreakerService
	Accounts *service.AccountService

	// APIKey is the resolved HTTP API key; empty disables request auth.
	APIKey string

	// Health probes for the HTTP health endpoint.
	PostgresHealth func(ctx context.Context) error
	RedisHealth    func(ctx context.Context) error
	S3Health       func(ctx context.Context) error
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
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.BreakerStore = postgres.NewBreakerStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.Ledger = postgres.NewLedger(pool)
	deps.PostgresHealth = pgClient.Ping

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

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RedisHealth = redisClient.Ping

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

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, logger)
	deps.S3Health = s3Client.Health

	// --- API key ---
	if cfg.Admin.APIKey != "" || cfg.Admin.EncryptedKeyPath != "" {
		apiKey, err := crypto.LoadAPIKey(crypto.KeyConfig{
			RawKey:           cfg.Admin.APIKey,
			EncryptedKeyPath: cfg.Admin.EncryptedKeyPath,
			KeyPassword:      cfg.Admin.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: api key: %w", err)
		}
		deps.APIKey = apiKey
	} else {
		logger.Warn("no admin API key configured, request authentication disabled")
	}

	// --- Core wiring ---
	clock := domain.SystemClock{}
	authorizer := auth.NewStaticAuthorizer(cfg.Admin.Identities)

	deps.Breaker = breaker.New(deps.BreakerStore, clock, logger)
	if err := ensureBreaker(ctx, deps.Breaker, cfg, logger); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: breaker: %w", err)
	}

	deps.Engine = resolution.NewEngine(resolution.LedgerRoll{}, logger)

	oracleCfg := oracle.Config{
		RPCURL:       cfg.Oracle.RPCURL,
		MaxStaleSecs: cfg.Oracle.MaxStaleSecs,
	}
	feeds := func(provider domain.OracleProvider) (oracle.PriceFeed, error) {
		return oracle.NewFeed(provider, oracleCfg, clock)
	}

	params := service.Params{
		MinVoteStake:          cfg.Market.MinVoteStake,
		MinDisputeStake:       cfg.Market.MinDisputeStake,
		DisputeExtensionHours: cfg.Market.DisputeExtensionHours,
		FeePercent:            cfg.Market.FeePercent,
		MaxDurationDays:       cfg.Market.MaxDurationDays,
	}

	deps.Markets = service.NewMarketService(
		deps.MarketStore,
		deps.MarketCache,
		deps.LockManager,
		deps.SignalBus,
		deps.AuditStore,
		deps.Ledger,
		clock,
		authorizer,
		feeds,
		deps.Engine,
		deps.Breaker,
		deps.Archiver,
		params,
		logger,
	)
	deps.Disputes = service.NewDisputeService(
		deps.Markets,
		deps.AuditStore,
		deps.Ledger,
		clock,
		authorizer,
		deps.Engine,
		deps.Breaker,
		params,
		logger,
	)
	deps.BreakerS = service.NewBreakerService(deps.Breaker, deps.AuditStore, deps.SignalBus, authorizer, logger)
	deps.Accounts = service.NewAccountService(deps.Ledger, deps.AuditStore, authorizer, logger)

	return deps, cleanup, nil
}

// ensureBreaker installs the configured breaker thresholds on first boot.
// An already-initialized breaker keeps its persisted state; runtime changes
// go through the admin API, not the config file.
func ensureBreaker(ctx context.Context, brk *breaker.Breaker, cfg *config.Config, logger *slog.Logger) error {
	_, err := brk.State(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrBreakerNotInitialized) {
		return err
	}

	admin := "system"
	if len(cfg.Admin.Identities) > 0 {
		admin = cfg.Admin.Identities[0]
	}
	logger.InfoContext(ctx, "initializing circuit breaker", slog.String("admin", admin))
	return brk.Init(ctx, admin, domain.BreakerConfig{
		MaxErrorRate:        cfg.Breaker.MaxErrorRate,
		MaxLatencyMS:        cfg.Breaker.MaxLatencyMS,
		MinLiquidity:        cfg.Breaker.MinLiquidity,
		FailureThreshold:    cfg.Breaker.FailureThreshold,
		RecoveryTimeoutSecs: cfg.Breaker.RecoveryTimeoutSecs,
		HalfOpenMaxRequests: cfg.Breaker.HalfOpenMaxRequests,
		AutoRecoveryEnabled: cfg.Breaker.AutoRecoveryEnabled,
	})
}
