// Package service hosts the watcher: the entry point that bootstraps
// account state, runs the streaming and polling data paths, and exposes the
// read surface callers consume.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polywatcher/internal/domain"
	"github.com/alanyoungcy/polywatcher/internal/poll"
	"github.com/alanyoungcy/polywatcher/internal/store"
)

// feedJoinTimeout bounds the wait for the streaming goroutine on Stop.
const feedJoinTimeout = 5 * time.Second

// Feed is the streaming data path as the watcher drives it.
type Feed interface {
	Run(ctx context.Context) error
	Close()
}

// Config tunes watcher startup behavior.
type Config struct {
	// BootstrapOnStart seeds the store from the exchange's position summary
	// before the data paths start.
	BootstrapOnStart bool

	// SeedWatchFromBootstrap adds every market discovered during bootstrap
	// to the poll watch set.
	SeedWatchFromBootstrap bool
}

// Watcher wires the store, the streaming feed, and the poll fallback into
// one lifecycle and fronts the store's read surface.
type Watcher struct {
	exchange domain.Exchange
	store    *store.Store
	feed     Feed
	poller   *poll.Manager
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	feedDone chan struct{}
}

// NewWatcher assembles a watcher. poller may be nil to run stream-only.
func NewWatcher(exchange domain.Exchange, st *store.Store, fd Feed, poller *poll.Manager, cfg Config, logger *slog.Logger) *Watcher {
	return &Watcher{
		exchange: exchange,
		store:    st,
		feed:     fd,
		poller:   poller,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "watcher")),
	}
}

// Start bootstraps state and launches the data paths. Calling Start on a
// running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if w.cfg.BootstrapOnStart {
		if err := w.bootstrap(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.feedDone = make(chan struct{})

	feedDone := w.feedDone
	go func() {
		defer close(feedDone)
		if err := w.feed.Run(runCtx); err != nil && runCtx.Err() == nil {
			w.logger.Error("feed exited", slog.String("error", err.Error()))
		}
	}()

	if w.poller != nil {
		w.poller.Start(runCtx)
	}

	w.running = true
	w.logger.Info("started", slog.String("address", w.store.Address()))
	return nil
}

// Stop shuts the watcher down: polling first so no new HTTP rounds start,
// then the stream, joining the feed goroutine with a bounded timeout.
// Calling Stop on a stopped watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, feedDone := w.cancel, w.feedDone
	w.mu.Unlock()

	if w.poller != nil {
		w.poller.Stop()
	}

	w.feed.Close()
	cancel()
	select {
	case <-feedDone:
	case <-time.After(feedJoinTimeout):
		w.logger.Warn("feed did not stop within join timeout")
	}

	w.logger.Info("stopped")
}

// bootstrap seeds the store from the exchange's position summary. Each
// summary row becomes one synthetic fill, as if the whole position had been
// taken in a single taker trade at the average price.
func (w *Watcher) bootstrap(ctx context.Context) error {
	summaries, err := w.exchange.FetchPositions(ctx, w.store.Address())
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	markets := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		if trade, ok := w.synthesizeTrade(sum, now); ok {
			w.store.InitTrades([]domain.Trade{trade})
			markets = append(markets, sum.Market)
		}
	}

	if w.cfg.SeedWatchFromBootstrap && w.poller != nil {
		w.poller.Watch().Add(markets, nil)
	}

	w.logger.Info("bootstrap complete",
		slog.Int("positions", len(summaries)),
		slog.Bool("seeded_watch", w.cfg.SeedWatchFromBootstrap))
	return nil
}

// synthesizeTrade turns one position summary row into a taker-side fill.
// Flat positions produce nothing.
func (w *Watcher) synthesizeTrade(sum domain.PositionSummary, matchTime int64) (domain.Trade, bool) {
	size := sum.Size
	side := domain.SideBuy
	if size < 0 {
		size = -size
		side = domain.SideSell
	}
	if size == 0 {
		return domain.Trade{}, false
	}

	return domain.Trade{
		ID:        uuid.NewString(),
		AssetID:   sum.AssetID,
		Market:    sum.Market,
		Outcome:   sum.Outcome,
		Maker:     w.store.Address(),
		Side:      side,
		Size:      size,
		Price:     sum.AvgPrice,
		Status:    "MATCHED",
		MatchTime: matchTime,
	}, true
}

// --------------------------------------------------------------------------
// Read surface and watch management
// --------------------------------------------------------------------------

// GetPosition returns the current position for the asset, or a zero-valued
// placeholder when the asset has never been seen.
func (w *Watcher) GetPosition(assetID string) domain.Position {
	if pos, ok := w.store.GetPosition(assetID); ok {
		return pos
	}
	return domain.Position{AssetID: assetID}
}

// GetOrder returns the latest known state of the order.
func (w *Watcher) GetOrder(orderID string) (domain.Order, bool) {
	return w.store.GetOrder(orderID)
}

// GetOrdersByAsset returns every sighted order for the asset.
func (w *Watcher) GetOrdersByAsset(assetID string) []domain.Order {
	return w.store.GetOrdersByAsset(assetID)
}

// BlockingGetPosition waits for the next position update, falling back to
// the current snapshot (or a zero placeholder) on timeout.
func (w *Watcher) BlockingGetPosition(ctx context.Context, assetID string, timeout time.Duration) domain.Position {
	return w.store.BlockingGetPosition(ctx, assetID, timeout)
}

// BlockingGetOrder waits for the next update of the order; ok is false when
// the timeout elapses without one.
func (w *Watcher) BlockingGetOrder(ctx context.Context, orderID string, timeout time.Duration) (domain.Order, bool) {
	return w.store.BlockingGetOrder(ctx, orderID, timeout)
}

// AddWatch grows the poll watch set. No-op without a poller.
func (w *Watcher) AddWatch(markets, orders []string) {
	if w.poller != nil {
		w.poller.Watch().Add(markets, orders)
	}
}

// RemoveWatch shrinks the poll watch set. No-op without a poller.
func (w *Watcher) RemoveWatch(markets, orders []string) {
	if w.poller != nil {
		w.poller.Watch().Remove(markets, orders)
	}
}

// ClearWatch empties the poll watch set. No-op without a poller.
func (w *Watcher) ClearWatch() {
	if w.poller != nil {
		w.poller.Watch().Clear()
	}
}
