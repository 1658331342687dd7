// Package store keeps the in-memory view of per-asset trade sets, the
// positions derived from them, and the latest state of every sighted order.
// It is the single ingestion point for both the streaming and the polling
// data paths, which makes the two sources reconcile identically.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polywatcher/internal/calc"
	"github.com/alanyoungcy/polywatcher/internal/domain"
)

// Option configures optional Store collaborators.
type Option func(*Store)

// WithCalcOptions sets the FIFO calculator options used on every recompute.
func WithCalcOptions(opts calc.Options) Option {
	return func(s *Store) { s.calcOpts = opts }
}

// WithTradeJournal mirrors every accepted trade into a journal.
func WithTradeJournal(j domain.TradeJournal) Option {
	return func(s *Store) { s.journal = j }
}

// WithPositionSink mirrors every published position snapshot into a sink.
func WithPositionSink(sink domain.PositionSink) Option {
	return func(s *Store) { s.sink = sink }
}

// Store is the thread-safe source of truth for reconciled account state.
// All map mutations and the position recompute run under one mutex, so a
// published snapshot is always consistent with the full trade set that
// produced it.
type Store struct {
	address  string
	calcOpts calc.Options
	journal  domain.TradeJournal
	sink     domain.PositionSink
	logger   *slog.Logger

	mu            sync.Mutex
	tradesByAsset map[string]map[string]domain.Trade
	positions     map[string]domain.Position
	orders        map[string]domain.Order
	posWaiters    mailboxes[domain.Position]
	orderWaiters  mailboxes[domain.Order]
}

// New creates a Store tracking the given wallet address.
func New(address string, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		address:       address,
		logger:        logger.With(slog.String("component", "position_store")),
		tradesByAsset: make(map[string]map[string]domain.Trade),
		positions:     make(map[string]domain.Position),
		orders:        make(map[string]domain.Order),
		posWaiters:    make(mailboxes[domain.Position]),
		orderWaiters:  make(mailboxes[domain.Order]),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Address returns the wallet address this store reconciles for.
func (s *Store) Address() string { return s.address }

// IngestTrade applies one fill. Re-delivery of the same trade id is
// idempotent: the stored record is replaced only when the incoming match
// time is strictly newer, so duplicate and out-of-order deliveries from the
// streaming and polling paths are silently discarded. On accept the asset's
// position is recomputed from its full trade set and published to snapshot
// readers and blocked waiters atomically.
func (s *Store) IngestTrade(trade domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, assetID, ok := trade.ResolveOwner(s.address)
	if !ok {
		s.logger.Debug("skip trade without matching maker/taker context",
			slog.String("trade_id", trade.ID))
		return
	}

	trades := s.tradesByAsset[assetID]
	if trades == nil {
		trades = make(map[string]domain.Trade)
		s.tradesByAsset[assetID] = trades
	}
	if existing, found := trades[trade.ID]; found && trade.MatchTime <= existing.MatchTime {
		return
	}
	trades[trade.ID] = trade

	s.recomputeLocked(assetID, outcome, trade.Market)
	s.journalAsync(trade)
}

// InitTrades replaces the entire trade set for the asset the batch belongs
// to and republishes the derived position. Used once at bootstrap; unlike
// IngestTrade it does not apply the stale-discard rule, since the batch is
// authoritative.
func (s *Store) InitTrades(batch []domain.Trade) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, assetID, ok := batch[0].ResolveOwner(s.address)
	if !ok {
		s.logger.Debug("skip trade batch without matching maker/taker context",
			slog.String("trade_id", batch[0].ID))
		return
	}

	trades := make(map[string]domain.Trade, len(batch))
	for _, trade := range batch {
		trades[trade.ID] = trade
	}
	s.tradesByAsset[assetID] = trades

	s.recomputeLocked(assetID, outcome, batch[0].Market)
	s.journalAsync(batch...)
}

// IngestOrder applies an order lifecycle event. Updates are monotonic: the
// incoming record is accepted only when its matched size is strictly larger
// than the stored one or its status differs; everything else is stale and
// silently discarded.
func (s *Store) IngestOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found := s.orders[order.ID]; found && !order.Supersedes(existing) {
		return
	}
	order.ComputeFilled()
	s.orders[order.ID] = order
	s.orderWaiters.signal(order.ID, order)
}

// MarkOrderCanceled handles a poll that found no order for a previously
// sighted id: the stored record, if any, is flipped to CANCELED and
// republished to waiters. It reports whether the status actually changed,
// so unknown and already-canceled ids are both no-ops.
func (s *Store) MarkOrderCanceled(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, found := s.orders[orderID]
	if !found {
		return false
	}
	if order.Status == domain.OrderStatusCanceled {
		return false
	}
	order.Status = domain.OrderStatusCanceled
	s.orders[orderID] = order
	s.orderWaiters.signal(orderID, order)
	return true
}

// GetPosition returns the latest derived position for the asset.
func (s *Store) GetPosition(assetID string) (domain.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[assetID]
	return pos, ok
}

// GetOrder returns the latest known state of the order.
func (s *Store) GetOrder(orderID string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	return order, ok
}

// GetOrdersByAsset returns the latest state of every sighted order for the
// asset.
func (s *Store) GetOrdersByAsset(assetID string) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []domain.Order
	for _, o := range s.orders {
		if o.AssetID == assetID {
			orders = append(orders, o)
		}
	}
	return orders
}

// TradeCount returns the number of distinct trades stored for the asset.
func (s *Store) TradeCount(assetID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tradesByAsset[assetID])
}

// BlockingGetPosition waits for the next position update for the asset. On
// timeout or context cancellation it falls back to the current snapshot, or
// a zero-valued placeholder when the asset has never been seen; callers can
// treat the result uniformly.
func (s *Store) BlockingGetPosition(ctx context.Context, assetID string, timeout time.Duration) domain.Position {
	s.mu.Lock()
	m := s.posWaiters.get(assetID)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.ch:
		return m.val
	case <-timer.C:
	case <-ctx.Done():
	}

	if pos, ok := s.GetPosition(assetID); ok {
		return pos
	}
	return domain.Position{AssetID: assetID}
}

// BlockingGetOrder waits for the next update of the order. On timeout or
// context cancellation it returns (zero, false) — "no update" — which is
// distinct from the order not existing; use GetOrder for the current state.
func (s *Store) BlockingGetOrder(ctx context.Context, orderID string, timeout time.Duration) (domain.Order, bool) {
	s.mu.Lock()
	m := s.orderWaiters.get(orderID)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.ch:
		return m.val, true
	case <-timer.C:
	case <-ctx.Done():
	}
	return domain.Order{}, false
}

// recomputeLocked rebuilds the asset's position from its full trade set and
// publishes it. Caller must hold the store lock; running the pure calculator
// inside the lock keeps the snapshot consistent with the waiter signal.
func (s *Store) recomputeLocked(assetID, outcome, market string) {
	trades := make([]domain.Trade, 0, len(s.tradesByAsset[assetID]))
	isFailed := false
	for _, t := range s.tradesByAsset[assetID] {
		trades = append(trades, t)
		if t.Status == domain.TradeStatusFailed {
			isFailed = true
		}
	}

	res := calc.Calculate(trades, s.address, s.calcOpts)

	pos := domain.Position{
		AssetID:     assetID,
		Market:      market,
		Outcome:     outcome,
		Size:        res.Size,
		AvgPrice:    res.AvgPrice,
		Volume:      res.CostBasis,
		RealizedPnL: res.RealizedPnL,
		LastUpdate:  res.LastUpdate,
		IsFailed:    isFailed,
	}
	s.positions[assetID] = pos
	s.posWaiters.signal(assetID, pos)

	if s.sink != nil {
		go func() {
			if err := s.sink.SetPosition(context.Background(), pos); err != nil {
				s.logger.Warn("position sink update failed",
					slog.String("asset_id", assetID),
					slog.String("error", err.Error()))
			}
		}()
	}
}

// journalAsync mirrors accepted trades into the journal without holding up
// ingestion. Journal failures are logged and dropped.
func (s *Store) journalAsync(trades ...domain.Trade) {
	if s.journal == nil {
		return
	}
	batch := append([]domain.Trade(nil), trades...)
	go func() {
		if err := s.journal.Append(context.Background(), batch); err != nil {
			s.logger.Warn("trade journal append failed",
				slog.Int("trades", len(batch)),
				slog.String("error", err.Error()))
		}
	}()
}
