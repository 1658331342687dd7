// Package poll implements the HTTP fallback data path: periodic trade and
// order syncs that cover stream gaps. The store's idempotence rules make it
// safe for both paths to deliver the same fills.
package poll

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

const (
	defaultInterval      = 3 * time.Second
	defaultMaxConcurrent = 3
	stopJoinTimeout      = 5 * time.Second
)

// Sink is the slice of the store the poll loops write into.
type Sink interface {
	IngestTrade(trade domain.Trade)
	InitTrades(batch []domain.Trade)
	IngestOrder(order domain.Order)
	MarkOrderCanceled(orderID string) bool
}

// Config tunes the poll loops.
type Config struct {
	// Interval between sync rounds, applied to both loops.
	Interval time.Duration

	// MaxConcurrent caps in-flight HTTP fetches within one sync round.
	MaxConcurrent int
}

// Manager drives the two poll loops over a mutable watch set. A fetch
// failure for one market or order is logged and skipped; it never aborts
// the rest of the round or the loop itself.
type Manager struct {
	exchange domain.Exchange
	sink     Sink
	watch    *WatchSet
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a poll manager over the given watch set.
func NewManager(exchange domain.Exchange, sink Sink, watch *WatchSet, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Manager{
		exchange: exchange,
		sink:     sink,
		watch:    watch,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "poll")),
	}
}

// Watch returns the manager's watch set for membership changes at runtime.
func (m *Manager) Watch() *WatchSet { return m.watch }

// Start launches the trade and order loops. Calling Start on a running
// manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.loop(loopCtx, "trades", func(ctx context.Context) { m.SyncTrades(ctx, false) })
	}()
	go func() {
		defer wg.Done()
		m.loop(loopCtx, "orders", m.SyncOrders)
	}()

	done := m.done
	go func() {
		wg.Wait()
		close(done)
	}()

	m.logger.Info("started",
		slog.Duration("interval", m.cfg.Interval),
		slog.Int("max_concurrent", m.cfg.MaxConcurrent))
}

// Stop cancels the loops and waits for them to exit, bounded by a join
// timeout. Calling Stop on a stopped manager is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		m.logger.Warn("loops did not stop within join timeout")
	}
	m.logger.Info("stopped")
}

func (m *Manager) loop(ctx context.Context, name string, sync func(context.Context)) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("loop stopped", slog.String("loop", name))
			return
		case <-ticker.C:
			sync(ctx)
		}
	}
}

// SyncTrades fetches trade history for every watched market and feeds the
// results into the store. With init true each market's batch replaces the
// stored trade set instead of merging, which is how bootstrap seeds state.
func (m *Manager) SyncTrades(ctx context.Context, init bool) {
	markets := m.watch.Markets()
	if len(markets) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrent)

	for _, market := range markets {
		market := market
		g.Go(func() error {
			trades, err := m.exchange.FetchTrades(gctx, domain.TradeQuery{Market: market})
			if err != nil {
				m.logger.Error("trade sync failed",
					slog.String("market", market),
					slog.String("error", err.Error()))
				return nil
			}

			sort.SliceStable(trades, func(i, j int) bool {
				return trades[i].MatchTime < trades[j].MatchTime
			})

			if init {
				m.sink.InitTrades(trades)
				return nil
			}
			for _, trade := range trades {
				m.sink.IngestTrade(trade)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// SyncOrders fetches the current state of every watched order. An order the
// API no longer knows is marked canceled in the store.
func (m *Manager) SyncOrders(ctx context.Context) {
	orderIDs := m.watch.Orders()
	if len(orderIDs) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrent)

	for _, orderID := range orderIDs {
		orderID := orderID
		g.Go(func() error {
			order, err := m.exchange.FetchOrder(gctx, orderID)
			if err != nil {
				m.logger.Error("order sync failed",
					slog.String("order_id", orderID),
					slog.String("error", err.Error()))
				return nil
			}
			if order == nil {
				if m.sink.MarkOrderCanceled(orderID) {
					m.logger.Info("order gone from api, marked canceled",
						slog.String("order_id", orderID))
				}
				return nil
			}
			m.sink.IngestOrder(*order)
			return nil
		})
	}
	_ = g.Wait()
}
