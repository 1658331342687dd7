// Package config defines the top-level configuration for the position
// watcher and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYWATCH_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Watcher    WatcherConfig    `toml:"watcher"`
	Fallback   FallbackConfig   `toml:"fallback"`
	Calc       CalcConfig       `toml:"calc"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost string `toml:"clob_host"`
	DataHost string `toml:"data_host"`
	WsHost   string `toml:"ws_host"`
	ChainID  int    `toml:"chain_id"`
}

// WatcherConfig holds streaming listener and bootstrap parameters.
type WatcherConfig struct {
	// IdleTimeout force-reconnects the stream after this long without any
	// message. Zero disables the watchdog.
	IdleTimeout duration `toml:"idle_timeout"`

	// ReconnectDelay is the pause between stream reconnect attempts.
	ReconnectDelay duration `toml:"reconnect_delay"`

	// BootstrapOnStart seeds positions from the exchange's REST summary.
	BootstrapOnStart bool `toml:"bootstrap_on_start"`

	// SeedWatchFromBootstrap adds bootstrap-discovered markets to the poll
	// watch set.
	SeedWatchFromBootstrap bool `toml:"seed_watch_from_bootstrap"`

	// Markets restricts the stream subscription to these condition ids.
	Markets []string `toml:"markets"`
}

// FallbackConfig holds HTTP poll fallback parameters.
type FallbackConfig struct {
	Enabled       bool     `toml:"enabled"`
	PollInterval  duration `toml:"poll_interval"`
	MaxConcurrent int      `toml:"max_concurrent"`
	Markets       []string `toml:"markets"`
	Orders        []string `toml:"orders"`
}

// CalcConfig holds position calculator parameters.
type CalcConfig struct {
	// FeeAdjustment scales buy sizes down by the estimated exchange fee.
	FeeAdjustment bool `toml:"fee_adjustment"`
}

// PostgresConfig holds the optional durable trade journal parameters.
type PostgresConfig struct {
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

// RedisConfig holds the optional position snapshot mirror parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost: "https://clob.polymarket.com",
			DataHost: "https://data-api.polymarket.com",
			WsHost:   "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:  137,
		},
		Watcher: WatcherConfig{
			IdleTimeout:            duration{time.Hour},
			ReconnectDelay:         duration{5 * time.Second},
			BootstrapOnStart:       true,
			SeedWatchFromBootstrap: true,
		},
		Fallback: FallbackConfig{
			Enabled:       true,
			PollInterval:  duration{3 * time.Second},
			MaxConcurrent: 3,
		},
		Calc: CalcConfig{
			FeeAdjustment: false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "polywatcher",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — at least one credential source must be specified.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	// Watcher
	if c.Watcher.IdleTimeout.Duration < 0 {
		errs = append(errs, "watcher: idle_timeout must not be negative")
	}
	if c.Watcher.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "watcher: reconnect_delay must be positive")
	}

	// Fallback
	if c.Fallback.Enabled {
		if c.Fallback.PollInterval.Duration <= 0 {
			errs = append(errs, "fallback: poll_interval must be positive when enabled")
		}
		if c.Fallback.MaxConcurrent < 1 {
			errs = append(errs, "fallback: max_concurrent must be >= 1 when enabled")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1 when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
