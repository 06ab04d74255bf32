// Package config defines the top-level configuration for the auction node
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DUTCH_* environment variables.
type Config struct {
	Program  ProgramConfig  `toml:"program"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	NodeKey  NodeKeyConfig  `toml:"node_key"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ProgramConfig identifies the auction program and tunes request admission.
type ProgramConfig struct {
	// ID is the 0x-prefixed identity every address is derived under.
	ID              string   `toml:"id"`
	LamportsPerByte uint64   `toml:"lamports_per_byte"`
	BaseLamports    uint64   `toml:"base_lamports"`
	MaxSkew         duration `toml:"max_skew"`
	ReplayTTL       duration `toml:"replay_ttl"`
	LockTTL         duration `toml:"lock_ttl"`
	LockWait        duration `toml:"lock_wait"`
}

// LedgerConfig controls the devnet helpers.
type LedgerConfig struct {
	// Devnet exposes the faucet endpoints.
	Devnet             bool   `toml:"devnet"`
	AirdropCapLamports uint64 `toml:"airdrop_cap_lamports"`
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
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

// ArchiveConfig controls moving old settlements to object storage.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Retention duration `toml:"retention"`
	Interval  duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey gates the devnet endpoints.
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// NodeKeyConfig locates the key settlement receipts are signed with.
type NodeKeyConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	Password         string `toml:"password"`
}

// DefaultProgramID is the program identity used when none is configured.
const DefaultProgramID = "0x64757463682d657363726f772d70726f6772616d000000000000000000000000"

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Program: ProgramConfig{
			ID:              DefaultProgramID,
			LamportsPerByte: 6960,
			BaseLamports:    128 * 6960,
			MaxSkew:         duration{2 * time.Minute},
			ReplayTTL:       duration{10 * time.Minute},
			LockTTL:         duration{10 * time.Second},
			LockWait:        duration{5 * time.Second},
		},
		Ledger: LedgerConfig{
			Devnet:             true,
			AirdropCapLamports: 100 * domain.LamportsPerSOL,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dutchescrow",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "dutch",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dutchescrow",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Retention: duration{90 * 24 * time.Hour},
			Interval:  duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{string(domain.EventSettled), string(domain.EventReclaimed)},
		},
		Mode:     "local",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"local":   true,
	"server":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesPostgres reports whether the mode keeps the ledger in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "archive"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: local, server, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Program
	if _, err := domain.ParsePubkey(c.Program.ID); err != nil {
		errs = append(errs, "program: id must be a 0x-prefixed 32-byte hex key")
	}
	if c.Program.LamportsPerByte == 0 {
		errs = append(errs, "program: lamports_per_byte must be > 0")
	}
	if c.Program.MaxSkew.Duration <= 0 {
		errs = append(errs, "program: max_skew must be > 0")
	}
	if c.Program.ReplayTTL.Duration < 2*c.Program.MaxSkew.Duration {
		errs = append(errs, "program: replay_ttl must be at least twice max_skew")
	}
	if c.Program.LockTTL.Duration <= 0 || c.Program.LockWait.Duration <= 0 {
		errs = append(errs, "program: lock_ttl and lock_wait must be > 0")
	}

	// Node key
	if c.NodeKey.EncryptedKeyPath != "" && c.NodeKey.Password == "" {
		errs = append(errs, "node_key: password is required when encrypted_key_path is set")
	}
	if mode == "server" && c.NodeKey.PrivateKey == "" && c.NodeKey.EncryptedKeyPath == "" {
		errs = append(errs, "node_key: either private_key or encrypted_key_path must be set for mode server")
	}

	// Postgres
	if c.UsesPostgres() {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 / archive
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Archive.Enabled || mode == "archive" {
		if !c.S3.Enabled {
			errs = append(errs, "archive: s3.enabled must be true")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be > 0")
		}
	}

	// Server
	if c.Server.Enabled && mode != "archive" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}
	if c.Ledger.Devnet && mode == "server" && c.Server.APIKey == "" {
		errs = append(errs, "server: api_key is required when ledger.devnet is enabled in mode server")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
