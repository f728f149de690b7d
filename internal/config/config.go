// Package config defines the configuration of the auction orchestrator and
// its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. It is decoded from TOML on top of
// Defaults and then overridden by FHEAUCTION_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	FHE      FHEConfig      `toml:"fhe"`
	Session  SessionConfig  `toml:"session"`
	Listing  ListingConfig  `toml:"listing"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig describes the RPC endpoint and the per-call bounds. A zero
// timeout disables that bound.
type ChainConfig struct {
	RPCURL              string   `toml:"rpc_url"`
	ChainID             int64    `toml:"chain_id"`
	FactoryAddress      string   `toml:"factory_address"`
	CallTimeout         Duration `toml:"call_timeout"`
	TxTimeout           Duration `toml:"tx_timeout"`
	ReceiptPollInterval Duration `toml:"receipt_poll_interval"`
	GasLimitMultiplier  float64  `toml:"gas_limit_multiplier"`
}

// WalletConfig holds the signing key, raw or in an encrypted key file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// FHEConfig points at the encryption gateway.
type FHEConfig struct {
	GatewayURL     string   `toml:"gateway_url"`
	APIKey         string   `toml:"api_key"`
	APISecret      string   `toml:"api_secret"`
	APIPassphrase  string   `toml:"api_passphrase"`
	RequestTimeout Duration `toml:"request_timeout"`
}

// SessionConfig bounds the viewing sessions.
type SessionConfig struct {
	MaxSessions int      `toml:"max_sessions"`
	LockTTL     Duration `toml:"lock_ttl"`
}

// ListingConfig tunes auction enumeration.
type ListingConfig struct {
	Concurrency int      `toml:"concurrency"`
	CacheTTL    Duration `toml:"cache_ttl"`
}

// SupabaseConfig holds the Postgres connection for the transaction ledger
// and audit log.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds the Redis connection used for locks, the listing cache,
// the event bus and API rate limiting.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow Duration `toml:"rate_window"`
}

// S3Config holds the object store for settlement archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ServerConfig holds the HTTP API parameters. An empty APIKey disables
// authentication.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds the operator notification channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Operations        []string `toml:"operations"`
	ErrorsOnly        bool     `toml:"errors_only"`
}

// Duration decodes TOML strings such as "30s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:              "http://localhost:8545",
			ChainID:             31337,
			CallTimeout:         Duration{15 * time.Second},
			TxTimeout:           Duration{3 * time.Minute},
			ReceiptPollInterval: Duration{time.Second},
			GasLimitMultiplier:  1.2,
		},
		FHE: FHEConfig{
			GatewayURL:     "http://localhost:7077",
			RequestTimeout: Duration{30 * time.Second},
		},
		Session: SessionConfig{
			MaxSessions: 256,
			LockTTL:     Duration{5 * time.Minute},
		},
		Listing: ListingConfig{
			Concurrency: 8,
			CacheTTL:    Duration{30 * time.Second},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "fheauction",
			RateLimit:  120,
			RateWindow: Duration{time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fheauction",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server": true,
	"list":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate reports every problem found in c as one error.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: server, list)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.Chain.RPCURL == "" {
		add("chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		add("chain: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Chain.FactoryAddress) {
		add("chain: factory_address %q is not a hex address", c.Chain.FactoryAddress)
	}
	if c.Chain.GasLimitMultiplier < 1 {
		add("chain: gas_limit_multiplier must be >= 1")
	}
	if c.Chain.CallTimeout.Duration < 0 || c.Chain.TxTimeout.Duration < 0 {
		add("chain: timeouts must not be negative")
	}

	if c.Mode == "server" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for mode server")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required when encrypted_key_path is set")
	}

	if c.FHE.GatewayURL == "" {
		add("fhe: gateway_url must not be empty")
	}
	k, s, p := c.FHE.APIKey != "", c.FHE.APISecret != "", c.FHE.APIPassphrase != ""
	if (k || s || p) && !(k && s && p) {
		add("fhe: api_key, api_secret and api_passphrase must be set together")
	}

	if c.Session.MaxSessions < 1 {
		add("session: max_sessions must be >= 1")
	}
	if c.Listing.Concurrency < 1 {
		add("listing: concurrency must be >= 1")
	}

	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				add("supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				add("supabase: port must be 1-65535, got %d", c.Supabase.Port)
			}
			if c.Supabase.Database == "" {
				add("supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			add("supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 || c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			add("supabase: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if c.Mode == "server" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
