package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

type fakeExchange struct {
	mu       sync.Mutex
	trades   map[string][]domain.Trade // keyed by market
	orders   map[string]*domain.Order  // nil value means not found
	failMkts map[string]bool
	failOrds map[string]bool
	calls    int
}

func (f *fakeExchange) FetchTrades(_ context.Context, q domain.TradeQuery) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failMkts[q.Market] {
		return nil, errors.New("boom")
	}
	return f.trades[q.Market], nil
}

func (f *fakeExchange) FetchOrder(_ context.Context, orderID string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOrds[orderID] {
		return nil, errors.New("boom")
	}
	return f.orders[orderID], nil
}

func (f *fakeExchange) FetchPositions(context.Context, string) ([]domain.PositionSummary, error) {
	return nil, nil
}

type recordingSink struct {
	mu       sync.Mutex
	ingested []domain.Trade
	inits    [][]domain.Trade
	orders   []domain.Order
	canceled []string
}

func (r *recordingSink) IngestTrade(t domain.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested = append(r.ingested, t)
}

func (r *recordingSink) InitTrades(batch []domain.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits = append(r.inits, batch)
}

func (r *recordingSink) IngestOrder(o domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
}

func (r *recordingSink) MarkOrderCanceled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, id)
	return true
}

func newTestManager(ex domain.Exchange, sink Sink, watch *WatchSet) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(ex, sink, watch, Config{Interval: 10 * time.Millisecond}, logger)
}

func TestSyncTradesSortsByMatchTime(t *testing.T) {
	ex := &fakeExchange{trades: map[string][]domain.Trade{
		"m1": {
			{ID: "t2", AssetID: "a", MatchTime: 200},
			{ID: "t1", AssetID: "a", MatchTime: 100},
		},
	}}
	sink := &recordingSink{}
	m := newTestManager(ex, sink, NewWatchSet([]string{"m1"}, nil))

	m.SyncTrades(context.Background(), false)

	require.Len(t, sink.ingested, 2)
	assert.Equal(t, "t1", sink.ingested[0].ID)
	assert.Equal(t, "t2", sink.ingested[1].ID)
}

func TestSyncTradesInitReplaces(t *testing.T) {
	ex := &fakeExchange{trades: map[string][]domain.Trade{
		"m1": {{ID: "t1", AssetID: "a", MatchTime: 100}},
	}}
	sink := &recordingSink{}
	m := newTestManager(ex, sink, NewWatchSet([]string{"m1"}, nil))

	m.SyncTrades(context.Background(), true)

	require.Len(t, sink.inits, 1)
	assert.Empty(t, sink.ingested)
}

func TestSyncTradesFailureIsolated(t *testing.T) {
	ex := &fakeExchange{
		trades: map[string][]domain.Trade{
			"good": {{ID: "t1", AssetID: "a", MatchTime: 100}},
		},
		failMkts: map[string]bool{"bad": true},
	}
	sink := &recordingSink{}
	m := newTestManager(ex, sink, NewWatchSet([]string{"good", "bad"}, nil))

	m.SyncTrades(context.Background(), false)

	require.Len(t, sink.ingested, 1, "the failing market must not poison the round")
	assert.Equal(t, "t1", sink.ingested[0].ID)
}

func TestSyncOrders(t *testing.T) {
	ex := &fakeExchange{
		orders: map[string]*domain.Order{
			"live":    {ID: "live", Status: domain.OrderStatusLive},
			"gone":    nil,
			"failing": nil,
		},
		failOrds: map[string]bool{"failing": true},
	}
	sink := &recordingSink{}
	m := newTestManager(ex, sink, NewWatchSet(nil, []string{"live", "gone", "failing"}))

	m.SyncOrders(context.Background())

	require.Len(t, sink.orders, 1)
	assert.Equal(t, "live", sink.orders[0].ID)
	assert.Equal(t, []string{"gone"}, sink.canceled)
}

func TestSyncSkipsEmptyWatchSet(t *testing.T) {
	ex := &fakeExchange{}
	sink := &recordingSink{}
	m := newTestManager(ex, sink, NewWatchSet(nil, nil))

	m.SyncTrades(context.Background(), false)
	m.SyncOrders(context.Background())

	assert.Zero(t, ex.calls)
}

func TestStartStopDrivesTicks(t *testing.T) {
	ex := &fakeExchange{trades: map[string][]domain.Trade{
		"m1": {{ID: "t1", AssetID: "a", MatchTime: 100}},
	}}
	sink := &recordingSink{}
	m := newTestManager(ex, sink, NewWatchSet([]string{"m1"}, nil))

	m.Start(context.Background())
	m.Start(context.Background()) // second Start is a no-op

	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.ingested) > 0
	}, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop() // second Stop is a no-op

	sink.mu.Lock()
	after := len(sink.ingested)
	sink.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	sink.mu.Lock()
	assert.Equal(t, after, len(sink.ingested), "no syncs after Stop")
	sink.mu.Unlock()
}

func TestWatchSetMembership(t *testing.T) {
	w := NewWatchSet([]string{"m1"}, []string{"o1"})

	w.Add([]string{"m2"}, nil)
	assert.ElementsMatch(t, []string{"m1", "m2"}, w.Markets())

	w.Remove([]string{"m1"}, []string{"o1"})
	assert.ElementsMatch(t, []string{"m2"}, w.Markets())
	assert.Empty(t, w.Orders())

	w.Reset([]string{"m9"}, nil)
	assert.ElementsMatch(t, []string{"m9"}, w.Markets())

	w.Clear()
	assert.Empty(t, w.Markets())
	assert.Empty(t, w.Orders())
}
