package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/fheauction/internal/blob/s3"
	"github.com/alanyoungcy/fheauction/internal/cache/redis"
	"github.com/alanyoungcy/fheauction/internal/chain"
	"github.com/alanyoungcy/fheauction/internal/config"
	"github.com/alanyoungcy/fheauction/internal/crypto"
	"github.com/alanyoungcy/fheauction/internal/domain"
	"github.com/alanyoungcy/fheauction/internal/fhe"
	"github.com/alanyoungcy/fheauction/internal/notify"
	"github.com/alanyoungcy/fheauction/internal/store/postgres"
)

// Dependencies bundles everything the modes need. The chain and encryption
// clients are always present; every other field is nil when its backend is
// disabled.
type Dependencies struct {
	Chain  *chain.Client
	FHE    *fhe.Client
	Signer *crypto.Signer // nil when no wallet is configured

	// Stores
	TxStore    domain.TxStore
	AuditStore domain.AuditStore

	// Caches
	SummaryCache domain.SummaryCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Ledger     *s3blob.LedgerArchiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{}

	// --- Wallet (optional for read-only modes) ---
	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeySource{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail("wallet", err)
		}
		if deps.Signer, err = crypto.NewSigner(key, cfg.Chain.ChainID); err != nil {
			return fail("wallet", err)
		}
		logger.InfoContext(ctx, "wire: wallet loaded",
			slog.String("address", domain.AddressString(deps.Signer.Address())),
		)
	}

	// --- Chain ---
	ec, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail("chain", err)
	}
	closers = append(closers, ec.Close)

	var txSigner chain.TxSigner
	if deps.Signer != nil {
		txSigner = deps.Signer
	}
	deps.Chain = chain.New(ec, txSigner, chain.Config{
		FactoryAddress:      common.HexToAddress(cfg.Chain.FactoryAddress),
		CallTimeout:         cfg.Chain.CallTimeout.Duration,
		TxTimeout:           cfg.Chain.TxTimeout.Duration,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval.Duration,
		GasLimitMultiplier:  cfg.Chain.GasLimitMultiplier,
	}, logger)

	// --- FHE gateway ---
	deps.FHE = fhe.New(fhe.Config{
		GatewayURL:     cfg.FHE.GatewayURL,
		ChainID:        cfg.Chain.ChainID,
		RequestTimeout: cfg.FHE.RequestTimeout.Duration,
		Auth:           gatewayAuth(cfg.FHE),
	}, logger)

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.TxStore = postgres.NewTxStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
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
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SummaryCache = redis.NewSummaryCache(redisClient, cfg.Listing.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Redis.RateLimit, cfg.Redis.RateWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
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
			return fail("s3", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: s3 bucket not reachable yet",
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = s3blob.NewReader(s3Client)
		// The ledger export reads from the transaction store.
		if deps.TxStore != nil {
			deps.Ledger = s3blob.NewLedgerArchiver(writer, deps.TxStore, deps.AuditStore)
		}
	}

	// --- Notifications ---
	if senders := notifySenders(cfg.Notify); len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, notify.Filter{
			Operations: cfg.Notify.Operations,
			ErrorsOnly: cfg.Notify.ErrorsOnly,
		}, logger)
	}

	return deps, cleanup, nil
}

// gatewayAuth returns the HMAC credentials of the gateway, or nil when none
// are configured.
func gatewayAuth(cfg config.FHEConfig) *crypto.GatewayAuth {
	if cfg.APIKey == "" {
		return nil
	}
	return &crypto.GatewayAuth{
		Key:        cfg.APIKey,
		Secret:     cfg.APISecret,
		Passphrase: cfg.APIPassphrase,
	}
}

func notifySenders(cfg config.NotifyConfig) []notify.Sender {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return senders
}
