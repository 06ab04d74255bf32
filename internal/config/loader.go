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
// built-in defaults, applies DUTCH_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DUTCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Program ──
	setStr(&cfg.Program.ID, "DUTCH_PROGRAM_ID")
	setUint64(&cfg.Program.LamportsPerByte, "DUTCH_PROGRAM_LAMPORTS_PER_BYTE")
	setUint64(&cfg.Program.BaseLamports, "DUTCH_PROGRAM_BASE_LAMPORTS")
	setDuration(&cfg.Program.MaxSkew, "DUTCH_PROGRAM_MAX_SKEW")
	setDuration(&cfg.Program.ReplayTTL, "DUTCH_PROGRAM_REPLAY_TTL")
	setDuration(&cfg.Program.LockTTL, "DUTCH_PROGRAM_LOCK_TTL")
	setDuration(&cfg.Program.LockWait, "DUTCH_PROGRAM_LOCK_WAIT")

	// ── Ledger ──
	setBool(&cfg.Ledger.Devnet, "DUTCH_LEDGER_DEVNET")
	setUint64(&cfg.Ledger.AirdropCapLamports, "DUTCH_LEDGER_AIRDROP_CAP_LAMPORTS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DUTCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DUTCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DUTCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DUTCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DUTCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DUTCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DUTCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DUTCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DUTCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DUTCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DUTCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DUTCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DUTCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DUTCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DUTCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DUTCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DUTCH_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "DUTCH_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DUTCH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DUTCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DUTCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "DUTCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DUTCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DUTCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DUTCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DUTCH_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "DUTCH_S3_PREFIX")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DUTCH_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Retention, "DUTCH_ARCHIVE_RETENTION")
	setDuration(&cfg.Archive.Interval, "DUTCH_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DUTCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DUTCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DUTCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DUTCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DUTCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "DUTCH_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DUTCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DUTCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DUTCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DUTCH_NOTIFY_EVENTS")

	// ── Node key ──
	setStr(&cfg.NodeKey.PrivateKey, "DUTCH_NODE_KEY_PRIVATE_KEY")
	setStr(&cfg.NodeKey.EncryptedKeyPath, "DUTCH_NODE_KEY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.NodeKey.Password, "DUTCH_NODE_KEY_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "DUTCH_MODE")
	setStr(&cfg.LogLevel, "DUTCH_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
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
