package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FHEAUCTION_"

// Load decodes the TOML file at path over Defaults, loads .env if present
// and applies environment overrides. A missing file is not an error, so a
// deployment can be configured from the environment alone. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	applyEnvOverrides(&cfg, os.Getenv)
	return &cfg, nil
}

// applyEnvOverrides sets every field whose variable is non-empty.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	e := env{getenv: getenv}

	e.str(&cfg.Chain.RPCURL, "CHAIN_RPC_URL")
	e.int64(&cfg.Chain.ChainID, "CHAIN_CHAIN_ID")
	e.str(&cfg.Chain.FactoryAddress, "CHAIN_FACTORY_ADDRESS")
	e.duration(&cfg.Chain.CallTimeout, "CHAIN_CALL_TIMEOUT")
	e.duration(&cfg.Chain.TxTimeout, "CHAIN_TX_TIMEOUT")
	e.duration(&cfg.Chain.ReceiptPollInterval, "CHAIN_RECEIPT_POLL_INTERVAL")
	e.float64(&cfg.Chain.GasLimitMultiplier, "CHAIN_GAS_LIMIT_MULTIPLIER")

	e.str(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	e.str(&cfg.Wallet.EncryptedKeyPath, "WALLET_ENCRYPTED_KEY_PATH")
	e.str(&cfg.Wallet.KeyPassword, "WALLET_KEY_PASSWORD")

	e.str(&cfg.FHE.GatewayURL, "FHE_GATEWAY_URL")
	e.str(&cfg.FHE.APIKey, "FHE_API_KEY")
	e.str(&cfg.FHE.APISecret, "FHE_API_SECRET")
	e.str(&cfg.FHE.APIPassphrase, "FHE_API_PASSPHRASE")
	e.duration(&cfg.FHE.RequestTimeout, "FHE_REQUEST_TIMEOUT")

	e.int(&cfg.Session.MaxSessions, "SESSION_MAX_SESSIONS")
	e.duration(&cfg.Session.LockTTL, "SESSION_LOCK_TTL")
	e.int(&cfg.Listing.Concurrency, "LISTING_CONCURRENCY")
	e.duration(&cfg.Listing.CacheTTL, "LISTING_CACHE_TTL")

	e.bool(&cfg.Supabase.Enabled, "SUPABASE_ENABLED")
	e.str(&cfg.Supabase.DSN, "SUPABASE_DSN")
	e.str(&cfg.Supabase.Host, "SUPABASE_HOST")
	e.int(&cfg.Supabase.Port, "SUPABASE_PORT")
	e.str(&cfg.Supabase.Database, "SUPABASE_DATABASE")
	e.str(&cfg.Supabase.User, "SUPABASE_USER")
	e.str(&cfg.Supabase.Password, "SUPABASE_PASSWORD")
	e.str(&cfg.Supabase.SSLMode, "SUPABASE_SSL_MODE")
	e.int(&cfg.Supabase.PoolMaxConns, "SUPABASE_POOL_MAX_CONNS")
	e.int(&cfg.Supabase.PoolMinConns, "SUPABASE_POOL_MIN_CONNS")
	e.bool(&cfg.Supabase.RunMigrations, "SUPABASE_RUN_MIGRATIONS")

	e.bool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	e.str(&cfg.Redis.Addr, "REDIS_ADDR")
	e.str(&cfg.Redis.Password, "REDIS_PASSWORD")
	e.int(&cfg.Redis.DB, "REDIS_DB")
	e.int(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	e.int(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	e.bool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	e.str(&cfg.Redis.KeyPrefix, "REDIS_KEY_PREFIX")
	e.int(&cfg.Redis.RateLimit, "REDIS_RATE_LIMIT")
	e.duration(&cfg.Redis.RateWindow, "REDIS_RATE_WINDOW")

	e.bool(&cfg.S3.Enabled, "S3_ENABLED")
	e.str(&cfg.S3.Endpoint, "S3_ENDPOINT")
	e.str(&cfg.S3.Region, "S3_REGION")
	e.str(&cfg.S3.Bucket, "S3_BUCKET")
	e.str(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	e.str(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	e.bool(&cfg.S3.UseSSL, "S3_USE_SSL")
	e.bool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	e.str(&cfg.S3.Prefix, "S3_PREFIX")

	e.int(&cfg.Server.Port, "SERVER_PORT")
	e.strings(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	e.str(&cfg.Server.APIKey, "SERVER_API_KEY")

	e.str(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	e.str(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	e.str(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	e.strings(&cfg.Notify.Operations, "NOTIFY_OPERATIONS")
	e.bool(&cfg.Notify.ErrorsOnly, "NOTIFY_ERRORS_ONLY")

	e.str(&cfg.Mode, "MODE")
	e.str(&cfg.LogLevel, "LOG_LEVEL")
}

// env reads prefixed variables. Unparseable values leave the field as is.
type env struct {
	getenv func(string) string
}

func (e env) get(key string) string {
	return strings.TrimSpace(e.getenv(EnvPrefix + key))
}

func (e env) str(dst *string, key string) {
	if v := e.get(key); v != "" {
		*dst = v
	}
}

func (e env) int(dst *int, key string) {
	if n, err := strconv.Atoi(e.get(key)); err == nil {
		*dst = n
	}
}

func (e env) int64(dst *int64, key string) {
	if n, err := strconv.ParseInt(e.get(key), 10, 64); err == nil {
		*dst = n
	}
}

func (e env) float64(dst *float64, key string) {
	if f, err := strconv.ParseFloat(e.get(key), 64); err == nil {
		*dst = f
	}
}

func (e env) bool(dst *bool, key string) {
	if b, err := strconv.ParseBool(e.get(key)); err == nil {
		*dst = b
	}
}

func (e env) duration(dst *Duration, key string) {
	if d, err := time.ParseDuration(e.get(key)); err == nil {
		dst.Duration = d
	}
}

func (e env) strings(dst *[]string, key string) {
	v := e.get(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
