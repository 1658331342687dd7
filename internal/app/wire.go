// Package app constructs the watcher's dependency graph from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polywatcher/internal/cache/redis"
	"github.com/alanyoungcy/polywatcher/internal/calc"
	"github.com/alanyoungcy/polywatcher/internal/config"
	"github.com/alanyoungcy/polywatcher/internal/crypto"
	"github.com/alanyoungcy/polywatcher/internal/feed"
	"github.com/alanyoungcy/polywatcher/internal/platform/polymarket"
	"github.com/alanyoungcy/polywatcher/internal/poll"
	"github.com/alanyoungcy/polywatcher/internal/service"
	"github.com/alanyoungcy/polywatcher/internal/store"
	"github.com/alanyoungcy/polywatcher/internal/store/postgres"
)

// Dependencies bundles the assembled application. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Watcher  *service.Watcher
	Store    *store.Store
	Exchange *polymarket.ClobClient
}

// Wire constructs the full watcher stack from configuration: credentials,
// the REST and WebSocket clients, the optional journal and snapshot mirror,
// and the watcher itself. The returned cleanup releases connections and
// must be called on shutdown, after Watcher.Stop.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Credentials ---
	privateKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: load key: %w", err)
	}

	signer, err := crypto.NewSigner(privateKey, cfg.Polymarket.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	address := signer.Address().Hex()

	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, cfg.Polymarket.DataHost, signer, nil)
	if err := clob.DeriveAPIKey(ctx); err != nil {
		return nil, nil, fmt.Errorf("wire: derive api key: %w", err)
	}

	// --- Store with optional collaborators ---
	storeOpts := []store.Option{
		store.WithCalcOptions(calc.Options{EnableFeeAdjust: cfg.Calc.FeeAdjustment}),
	}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		storeOpts = append(storeOpts, store.WithTradeJournal(postgres.NewJournal(pgClient.Pool())))
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		storeOpts = append(storeOpts, store.WithPositionSink(redis.NewPositionCache(redisClient)))
	}

	st := store.New(address, logger, storeOpts...)

	// --- Data paths ---
	userFeed := feed.NewUserFeed(polymarket.UserWSConfig{
		URL:            cfg.Polymarket.WsHost + "/ws/user",
		Creds:          *clob.Creds(),
		Markets:        cfg.Watcher.Markets,
		IdleTimeout:    cfg.Watcher.IdleTimeout.Duration,
		ReconnectDelay: cfg.Watcher.ReconnectDelay.Duration,
	}, st, logger)

	var poller *poll.Manager
	if cfg.Fallback.Enabled {
		poller = poll.NewManager(clob, st,
			poll.NewWatchSet(cfg.Fallback.Markets, cfg.Fallback.Orders),
			poll.Config{
				Interval:      cfg.Fallback.PollInterval.Duration,
				MaxConcurrent: cfg.Fallback.MaxConcurrent,
			}, logger)
	}

	watcher := service.NewWatcher(clob, st, userFeed, poller, service.Config{
		BootstrapOnStart:       cfg.Watcher.BootstrapOnStart,
		SeedWatchFromBootstrap: cfg.Watcher.SeedWatchFromBootstrap,
	}, logger)

	return &Dependencies{
		Watcher:  watcher,
		Store:    st,
		Exchange: clob,
	}, cleanup, nil
}
