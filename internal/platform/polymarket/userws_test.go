package polymarket

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

func newTestWS() (*UserWS, *[]domain.Trade, *[]domain.Order) {
	w := NewUserWS(UserWSConfig{URL: "wss://example.invalid/ws/user"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	var trades []domain.Trade
	var orders []domain.Order
	w.OnTrade(func(t domain.Trade) { trades = append(trades, t) })
	w.OnOrder(func(o domain.Order) { orders = append(orders, o) })
	return w, &trades, &orders
}

func TestHandleMessageBatch(t *testing.T) {
	w, trades, orders := newTestWS()

	w.handleMessage([]byte(`[
		{"event_type":"trade","id":"t1","asset_id":"a1","side":"buy","size":"5","price":"0.4","match_time":"100"},
		{"event_type":"order","type":"PLACEMENT","id":"o1","asset_id":"a1","side":"SELL","original_size":"10","size_matched":"0","status":"live"},
		{"event_type":"trade","id":"t2","asset_id":"a1","side":"SELL","size":2,"price":0.6,"match_time":101}
	]`))

	require.Len(t, *trades, 2)
	require.Len(t, *orders, 1)

	assert.Equal(t, "t1", (*trades)[0].ID)
	assert.Equal(t, domain.SideBuy, (*trades)[0].Side)
	assert.Equal(t, 5.0, (*trades)[0].Size)
	assert.Equal(t, "t2", (*trades)[1].ID)
	assert.Equal(t, int64(101), (*trades)[1].MatchTime)

	assert.Equal(t, "o1", (*orders)[0].ID)
	assert.Equal(t, domain.OrderStatusLive, (*orders)[0].Status)
}

func TestHandleMessageSingleObject(t *testing.T) {
	w, trades, orders := newTestWS()

	w.handleMessage([]byte(`{"event_type":"order","type":"CANCELLATION","id":"o9","asset_id":"a1","original_size":"10","size_matched":"3"}`))

	assert.Empty(t, *trades)
	require.Len(t, *orders, 1)
	assert.Equal(t, domain.OrderStatusCanceled, (*orders)[0].Status)
}

func TestHandleMessageIgnoresPongAndUnknownEvents(t *testing.T) {
	w, trades, orders := newTestWS()

	w.handleMessage([]byte(`PONG`))
	w.handleMessage([]byte(`{"event_type":"book","asset_id":"a1"}`))
	w.handleMessage([]byte(`{"asset_id":"a1"}`))

	assert.Empty(t, *trades)
	assert.Empty(t, *orders)
}

func TestHandleMessageDropsMalformedPayloads(t *testing.T) {
	w, trades, orders := newTestWS()

	w.handleMessage([]byte(`not json at all`))
	w.handleMessage([]byte(`{"event_type":42}`))
	w.handleMessage([]byte(`{"event_type":"trade","size":{"nested":true}}`))
	w.handleMessage([]byte(`{"event_type":"order","original_size":[1,2]}`))

	// A bad item must not poison the rest of its batch.
	w.handleMessage([]byte(`[
		{"event_type":"trade","size":{}},
		{"event_type":"trade","id":"t3","side":"BUY","size":"1","price":"0.5","match_time":"7"}
	]`))

	require.Len(t, *trades, 1)
	assert.Equal(t, "t3", (*trades)[0].ID)
	assert.Empty(t, *orders)
}
