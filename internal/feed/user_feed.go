// Package feed bridges the streaming data path into the store: every event
// read off the user WebSocket channel is forwarded to ingestion, where the
// idempotence rules reconcile it with whatever the polling path delivered.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polywatcher/internal/domain"
	"github.com/alanyoungcy/polywatcher/internal/platform/polymarket"
)

// Ingestor is the slice of the store the feed writes into.
type Ingestor interface {
	IngestTrade(trade domain.Trade)
	IngestOrder(order domain.Order)
}

// UserFeed runs the user-channel listener and forwards its trade and order
// events into the store.
type UserFeed struct {
	ws     *polymarket.UserWS
	logger *slog.Logger

	closeOnce sync.Once
}

// NewUserFeed wires the listener's handlers to the store.
func NewUserFeed(cfg polymarket.UserWSConfig, store Ingestor, logger *slog.Logger) *UserFeed {
	f := &UserFeed{
		ws:     polymarket.NewUserWS(cfg, logger),
		logger: logger.With(slog.String("component", "user_feed")),
	}

	f.ws.OnTrade(func(trade domain.Trade) {
		f.logger.Debug("trade event",
			slog.String("trade_id", trade.ID),
			slog.String("asset_id", trade.AssetID),
			slog.String("status", trade.Status))
		store.IngestTrade(trade)
	})
	f.ws.OnOrder(func(order domain.Order) {
		f.logger.Debug("order event",
			slog.String("order_id", order.ID),
			slog.String("status", string(order.Status)))
		store.IngestOrder(order)
	})

	return f
}

// Run blocks, processing stream events until ctx is canceled or Close is
// called.
func (f *UserFeed) Run(ctx context.Context) error {
	return f.ws.Run(ctx)
}

// Close stops the feed. Safe to call more than once.
func (f *UserFeed) Close() {
	f.closeOnce.Do(func() {
		if err := f.ws.Close(); err != nil {
			f.logger.Warn("close", slog.String("error", err.Error()))
		}
	})
}
