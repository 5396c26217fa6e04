package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Escrow.BaseURL = "https://escrow.example.com"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "maintenance"
	cfg.Redis.Addr = ""
	cfg.Engine.DefaultSpreadBps = 9000

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "default_spread_bps")
}

func TestValidate_DSNReplacesHostFields(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""
	cfg.Database.Port = 0
	cfg.Database.Database = ""
	require.Error(t, cfg.Validate())

	cfg.Database.DSN = "postgres://u:p@db:5432/sidebook"
	require.NoError(t, cfg.Validate())
}

func TestValidate_ArchiveOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Bucket = ""
	require.NoError(t, cfg.Validate())

	cfg.Archive.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIDEBOOK_MODE", "settle")
	t.Setenv("SIDEBOOK_DATABASE_PASSWORD", "hunter2")
	t.Setenv("SIDEBOOK_ENGINE_DEFAULT_MAX_WAGER", "250.5")
	t.Setenv("SIDEBOOK_ENGINE_ORACLE_STALE_AFTER", "2m")
	t.Setenv("SIDEBOOK_ENGINE_PREFERRED_KEYWORDS", "btc, eth , sol")
	t.Setenv("SIDEBOOK_SERVER_ENABLED", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "settle", cfg.Mode)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, 250.5, cfg.Engine.DefaultMaxWager)
	assert.Equal(t, 2*time.Minute, cfg.Engine.OracleStaleAfter.Duration)
	assert.Equal(t, []string{"btc", "eth", "sol"}, cfg.Engine.PreferredKeywords)
	assert.False(t, cfg.Server.Enabled)
}

func TestDurationTOMLRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	require.NoError(t, err)

	var back duration
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d.Duration, back.Duration)
}
