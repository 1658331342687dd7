package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polywatcher/internal/domain"
	"github.com/alanyoungcy/polywatcher/internal/poll"
	"github.com/alanyoungcy/polywatcher/internal/store"
)

const wallet = "0xabc0000000000000000000000000000000000001"

type stubExchange struct {
	positions []domain.PositionSummary
}

func (s *stubExchange) FetchTrades(context.Context, domain.TradeQuery) ([]domain.Trade, error) {
	return nil, nil
}

func (s *stubExchange) FetchOrder(context.Context, string) (*domain.Order, error) {
	return nil, nil
}

func (s *stubExchange) FetchPositions(context.Context, string) ([]domain.PositionSummary, error) {
	return s.positions, nil
}

type stubFeed struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
	once    sync.Once
}

func newStubFeed() *stubFeed { return &stubFeed{done: make(chan struct{})} }

func (f *stubFeed) Run(ctx context.Context) error {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	select {
	case <-ctx.Done():
	case <-f.done:
	}
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *stubFeed) Close() { f.once.Do(func() { close(f.done) }) }

func (f *stubFeed) isRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatcher(ex domain.Exchange, cfg Config) (*Watcher, *store.Store, *poll.Manager) {
	st := store.New(wallet, discard())
	poller := poll.NewManager(ex, st, poll.NewWatchSet(nil, nil),
		poll.Config{Interval: time.Hour}, discard())
	w := NewWatcher(ex, st, newStubFeed(), poller, cfg, discard())
	return w, st, poller
}

func TestBootstrapSynthesizesPositions(t *testing.T) {
	ex := &stubExchange{positions: []domain.PositionSummary{
		{AssetID: "asset-1", Market: "m1", Outcome: "Yes", Size: 25, AvgPrice: 0.4},
		{AssetID: "asset-2", Market: "m2", Outcome: "No", Size: -10, AvgPrice: 0.6},
		{AssetID: "asset-3", Market: "m3", Outcome: "Yes", Size: 0, AvgPrice: 0.5},
	}}
	w, st, poller := newTestWatcher(ex, Config{
		BootstrapOnStart:       true,
		SeedWatchFromBootstrap: true,
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	long := w.GetPosition("asset-1")
	assert.InDelta(t, 25.0, long.Size, 1e-9)
	assert.InDelta(t, 0.4, long.AvgPrice, 1e-9)
	assert.Equal(t, "Yes", long.Outcome)

	short := w.GetPosition("asset-2")
	assert.InDelta(t, -10.0, short.Size, 1e-9)

	// Flat positions leave nothing behind.
	assert.Zero(t, st.TradeCount("asset-3"))

	assert.ElementsMatch(t, []string{"m1", "m2"}, poller.Watch().Markets())
}

func TestBootstrapWithoutSeedLeavesWatchEmpty(t *testing.T) {
	ex := &stubExchange{positions: []domain.PositionSummary{
		{AssetID: "asset-1", Market: "m1", Outcome: "Yes", Size: 5, AvgPrice: 0.5},
	}}
	w, _, poller := newTestWatcher(ex, Config{BootstrapOnStart: true})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Empty(t, poller.Watch().Markets())
}

func TestGetPositionPlaceholder(t *testing.T) {
	w, _, _ := newTestWatcher(&stubExchange{}, Config{})

	pos := w.GetPosition("unknown")
	assert.Equal(t, "unknown", pos.AssetID)
	assert.Zero(t, pos.Size)
}

func TestStartStopLifecycle(t *testing.T) {
	ex := &stubExchange{}
	st := store.New(wallet, discard())
	fd := newStubFeed()
	w := NewWatcher(ex, st, fd, nil, Config{}, discard())

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()), "second Start is a no-op")

	assert.Eventually(t, fd.isRunning, time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop() // second Stop is a no-op
	assert.Eventually(t, func() bool { return !fd.isRunning() }, time.Second, 5*time.Millisecond)
}

func TestWatchManagement(t *testing.T) {
	w, _, poller := newTestWatcher(&stubExchange{}, Config{})

	w.AddWatch([]string{"m1", "m2"}, []string{"o1"})
	assert.ElementsMatch(t, []string{"m1", "m2"}, poller.Watch().Markets())
	assert.ElementsMatch(t, []string{"o1"}, poller.Watch().Orders())

	w.RemoveWatch([]string{"m1"}, nil)
	assert.ElementsMatch(t, []string{"m2"}, poller.Watch().Markets())

	w.ClearWatch()
	assert.Empty(t, poller.Watch().Markets())
	assert.Empty(t, poller.Watch().Orders())
}
