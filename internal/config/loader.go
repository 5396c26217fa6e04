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
// built-in defaults, applies SIDEBOOK_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SIDEBOOK_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "SIDEBOOK_DATABASE_DSN")
	setStr(&cfg.Database.Host, "SIDEBOOK_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SIDEBOOK_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SIDEBOOK_DATABASE_NAME")
	setStr(&cfg.Database.User, "SIDEBOOK_DATABASE_USER")
	setStr(&cfg.Database.Password, "SIDEBOOK_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SIDEBOOK_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "SIDEBOOK_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SIDEBOOK_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SIDEBOOK_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SIDEBOOK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIDEBOOK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIDEBOOK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIDEBOOK_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SIDEBOOK_REDIS_TLS_ENABLED")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "SIDEBOOK_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.Source, "SIDEBOOK_ORACLE_SOURCE")
	setInt(&cfg.Oracle.SyncLimit, "SIDEBOOK_ORACLE_SYNC_LIMIT")

	// ── Escrow ──
	setStr(&cfg.Escrow.BaseURL, "SIDEBOOK_ESCROW_BASE_URL")
	setStr(&cfg.Escrow.APIKey, "SIDEBOOK_ESCROW_API_KEY")

	// ── Hedge ──
	setBool(&cfg.Hedge.Enabled, "SIDEBOOK_HEDGE_ENABLED")
	setStr(&cfg.Hedge.BaseURL, "SIDEBOOK_HEDGE_BASE_URL")
	setStr(&cfg.Hedge.APIKey, "SIDEBOOK_HEDGE_API_KEY")

	// ── House wallet ──
	setStr(&cfg.House.WalletID, "SIDEBOOK_HOUSE_WALLET_ID")
	setStr(&cfg.House.PrivateKey, "SIDEBOOK_HOUSE_PRIVATE_KEY")

	// ── Engine ──
	setFloat64(&cfg.Engine.DefaultMaxWager, "SIDEBOOK_ENGINE_DEFAULT_MAX_WAGER")
	setInt(&cfg.Engine.DefaultSpreadBps, "SIDEBOOK_ENGINE_DEFAULT_SPREAD_BPS")
	setDuration(&cfg.Engine.OracleStaleAfter, "SIDEBOOK_ENGINE_ORACLE_STALE_AFTER")
	setDuration(&cfg.Engine.EnsureCooldown, "SIDEBOOK_ENGINE_ENSURE_COOLDOWN")
	setInt(&cfg.Engine.MaxOpenPositions, "SIDEBOOK_ENGINE_MAX_OPEN_POSITIONS")
	setInt(&cfg.Engine.ScanLimit, "SIDEBOOK_ENGINE_SCAN_LIMIT")
	setDuration(&cfg.Engine.SettleInterval, "SIDEBOOK_ENGINE_SETTLE_INTERVAL")
	setStringSlice(&cfg.Engine.PreferredKeywords, "SIDEBOOK_ENGINE_PREFERRED_KEYWORDS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SIDEBOOK_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "SIDEBOOK_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "SIDEBOOK_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "SIDEBOOK_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "SIDEBOOK_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "SIDEBOOK_ARCHIVE_SECRET_KEY")
	setInt(&cfg.Archive.RetentionDays, "SIDEBOOK_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SIDEBOOK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SIDEBOOK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SIDEBOOK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SIDEBOOK_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIDEBOOK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIDEBOOK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIDEBOOK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIDEBOOK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIDEBOOK_MODE")
	setStr(&cfg.LogLevel, "SIDEBOOK_LOG_LEVEL")
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
