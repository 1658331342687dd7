package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[wallet]
private_key = "0xdeadbeef"

[watcher]
idle_timeout = "30m"
bootstrap_on_start = false

[fallback]
poll_interval = "1s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, 30*time.Minute, cfg.Watcher.IdleTimeout.Duration)
	assert.False(t, cfg.Watcher.BootstrapOnStart)
	assert.Equal(t, time.Second, cfg.Fallback.PollInterval.Duration)

	// Untouched fields keep their defaults.
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
	assert.Equal(t, 5*time.Second, cfg.Watcher.ReconnectDelay.Duration)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[wallet]
private_key = "fromfile"
`)

	t.Setenv("POLYWATCH_WALLET_PRIVATE_KEY", "fromenv")
	t.Setenv("POLYWATCH_WATCHER_IDLE_TIMEOUT", "90s")
	t.Setenv("POLYWATCH_FALLBACK_MARKETS", "m1, m2,")
	t.Setenv("POLYWATCH_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fromenv", cfg.Wallet.PrivateKey)
	assert.Equal(t, 90*time.Second, cfg.Watcher.IdleTimeout.Duration)
	assert.Equal(t, []string{"m1", "m2"}, cfg.Fallback.Markets)
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	require.NoError(t, cfg.Validate())

	t.Run("missing wallet", func(t *testing.T) {
		c := Defaults()
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wallet")
	})

	t.Run("encrypted key needs password", func(t *testing.T) {
		c := Defaults()
		c.Wallet.EncryptedKeyPath = "/keys/wallet.json"
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key_password")
	})

	t.Run("bad log level", func(t *testing.T) {
		c := Defaults()
		c.Wallet.PrivateKey = "0xdeadbeef"
		c.LogLevel = "verbose"
		assert.Error(t, c.Validate())
	})

	t.Run("fallback interval", func(t *testing.T) {
		c := Defaults()
		c.Wallet.PrivateKey = "0xdeadbeef"
		c.Fallback.PollInterval.Duration = 0
		assert.Error(t, c.Validate())
	})

	t.Run("postgres pool bounds", func(t *testing.T) {
		c := Defaults()
		c.Wallet.PrivateKey = "0xdeadbeef"
		c.Postgres.Enabled = true
		c.Postgres.PoolMinConns = 20
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool_min_conns")
	})
}
