// Package config defines the top-level configuration for the sidebook
// settlement engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SIDEBOOK_* environment
// variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Oracle   OracleConfig   `toml:"oracle"`
	Escrow   EscrowConfig   `toml:"escrow"`
	Hedge    HedgeConfig    `toml:"hedge"`
	House    HouseConfig    `toml:"house"`
	Engine   EngineConfig   `toml:"engine"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// OracleConfig holds the market-data oracle endpoint.
type OracleConfig struct {
	BaseURL   string `toml:"base_url"`
	Source    string `toml:"source"`
	SyncLimit int    `toml:"sync_limit"`
}

// EscrowConfig holds the escrow settlement adapter endpoint.
type EscrowConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// HedgeConfig holds the optional secondary liquidity venue used for
// fire-and-forget hedge orders.
type HedgeConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// HouseConfig identifies the house wallet. WalletID wins when set; otherwise
// the address is derived from the private key. Both empty is valid — the
// engine degrades to wallet_required rejections.
type HouseConfig struct {
	WalletID   string `toml:"wallet_id"`
	PrivateKey string `toml:"private_key"`
}

// FallbackMarketConfig is the deterministic locally-synthesized market that
// keeps the system playable when no oracle market qualifies.
type FallbackMarketConfig struct {
	ID       string   `toml:"id"`
	Slug     string   `toml:"slug"`
	Question string   `toml:"question"`
	Category string   `toml:"category"`
	Horizon  duration `toml:"horizon"` // closeAt = now + horizon when (re)synthesized
}

// EngineConfig holds the wagering and settlement parameters.
type EngineConfig struct {
	DefaultMaxWager   float64              `toml:"default_max_wager"`
	DefaultSpreadBps  int                  `toml:"default_spread_bps"`
	OracleStaleAfter  duration             `toml:"oracle_stale_after"`
	EnsureCooldown    duration             `toml:"ensure_cooldown"`
	MaxOpenPositions  int                  `toml:"max_open_positions"`
	ScanLimit         int                  `toml:"scan_limit"`
	SettleInterval    duration             `toml:"settle_interval"`
	PreferredKeywords []string             `toml:"preferred_keywords"`
	Fallback          FallbackMarketConfig `toml:"fallback"`
}

// ArchiveConfig holds S3 retention-archive parameters.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "3m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "sidebook",
			User:          "sidebook",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Oracle: OracleConfig{
			BaseURL:   "https://gamma-api.polymarket.com",
			Source:    "polymarket",
			SyncLimit: 100,
		},
		Engine: EngineConfig{
			DefaultMaxWager:  100,
			DefaultSpreadBps: 200,
			OracleStaleAfter: duration{3 * time.Minute},
			EnsureCooldown:   duration{5 * time.Second},
			MaxOpenPositions: 12,
			ScanLimit:        500,
			SettleInterval:   duration{30 * time.Second},
			PreferredKeywords: []string{
				"bitcoin", "btc", "eth", "price",
			},
			Fallback: FallbackMarketConfig{
				ID:       "house-fallback",
				Slug:     "house-fallback",
				Question: "Will BTC close above its opening price today?",
				Category: "crypto",
				Horizon:  duration{24 * time.Hour},
			},
		},
		Archive: ArchiveConfig{
			Region:         "us-east-1",
			Bucket:         "sidebook-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"settlement", "liquidity_alert", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"settle": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, settle, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}
	if c.Oracle.SyncLimit < 1 {
		errs = append(errs, "oracle: sync_limit must be >= 1")
	}

	if c.Escrow.BaseURL == "" {
		errs = append(errs, "escrow: base_url must not be empty")
	}

	if c.Hedge.Enabled && c.Hedge.BaseURL == "" {
		errs = append(errs, "hedge: base_url must not be empty when enabled")
	}

	if c.Engine.DefaultMaxWager <= 0 {
		errs = append(errs, "engine: default_max_wager must be > 0")
	}
	if c.Engine.DefaultSpreadBps < 0 || c.Engine.DefaultSpreadBps > 5000 {
		errs = append(errs, fmt.Sprintf("engine: default_spread_bps must be 0-5000, got %d", c.Engine.DefaultSpreadBps))
	}
	if c.Engine.OracleStaleAfter.Duration < 30*time.Second {
		errs = append(errs, "engine: oracle_stale_after must be at least 30s")
	}
	if c.Engine.MaxOpenPositions < 1 {
		errs = append(errs, "engine: max_open_positions must be >= 1")
	}
	if c.Engine.ScanLimit < 1 {
		errs = append(errs, "engine: scan_limit must be >= 1")
	}
	if c.Engine.Fallback.ID == "" || c.Engine.Fallback.Question == "" {
		errs = append(errs, "engine: fallback market id and question must not be empty")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
