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
// built-in defaults, applies POLYWATCH_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known POLYWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYWATCH_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYWATCH_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYWATCH_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYWATCH_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYWATCH_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYWATCH_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYWATCH_POLYMARKET_CHAIN_ID")

	// ── Watcher ──
	setDuration(&cfg.Watcher.IdleTimeout, "POLYWATCH_WATCHER_IDLE_TIMEOUT")
	setDuration(&cfg.Watcher.ReconnectDelay, "POLYWATCH_WATCHER_RECONNECT_DELAY")
	setBool(&cfg.Watcher.BootstrapOnStart, "POLYWATCH_WATCHER_BOOTSTRAP_ON_START")
	setBool(&cfg.Watcher.SeedWatchFromBootstrap, "POLYWATCH_WATCHER_SEED_WATCH_FROM_BOOTSTRAP")
	setStringSlice(&cfg.Watcher.Markets, "POLYWATCH_WATCHER_MARKETS")

	// ── Fallback ──
	setBool(&cfg.Fallback.Enabled, "POLYWATCH_FALLBACK_ENABLED")
	setDuration(&cfg.Fallback.PollInterval, "POLYWATCH_FALLBACK_POLL_INTERVAL")
	setInt(&cfg.Fallback.MaxConcurrent, "POLYWATCH_FALLBACK_MAX_CONCURRENT")
	setStringSlice(&cfg.Fallback.Markets, "POLYWATCH_FALLBACK_MARKETS")
	setStringSlice(&cfg.Fallback.Orders, "POLYWATCH_FALLBACK_ORDERS")

	// ── Calc ──
	setBool(&cfg.Calc.FeeAdjustment, "POLYWATCH_CALC_FEE_ADJUSTMENT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYWATCH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYWATCH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYWATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYWATCH_REDIS_TLS_ENABLED")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYWATCH_LOG_LEVEL")
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
