package calc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

const wallet = "0xAbC0000000000000000000000000000000000001"

// takerTrade builds a fill where the tracked wallet acted as the taker.
func takerTrade(id string, side domain.Side, size, price float64, matchTime int64) domain.Trade {
	return domain.Trade{
		ID:        id,
		AssetID:   "asset-1",
		Market:    "market-1",
		Maker:     wallet,
		Side:      side,
		Size:      size,
		Price:     price,
		MatchTime: matchTime,
	}
}

func TestCalculateFIFO(t *testing.T) {
	trades := []domain.Trade{
		takerTrade("t1", domain.SideBuy, 10, 1.0, 1),
		takerTrade("t2", domain.SideBuy, 5, 2.0, 2),
		takerTrade("t3", domain.SideSell, 12, 3.0, 3),
	}

	res := Calculate(trades, wallet, Options{})

	// 10×(3−1) + 2×(3−2) = 22 realized; remaining lot (+3 @ 2.0).
	assert.InDelta(t, 22.0, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 3.0, res.Size, 1e-9)
	assert.InDelta(t, 2.0, res.AvgPrice, 1e-9)
	assert.InDelta(t, 6.0, res.CostBasis, 1e-9)
	assert.True(t, res.IsLong)
	assert.False(t, res.IsShort)
	assert.Equal(t, 2, res.BuyEvents)
	assert.Equal(t, 1, res.SellEvents)
	assert.Equal(t, 3, res.TotalEvents)
	assert.Equal(t, int64(3), res.LastUpdate)
}

func TestCalculateOrderIndependent(t *testing.T) {
	trades := []domain.Trade{
		takerTrade("t1", domain.SideBuy, 10, 0.4, 100),
		takerTrade("t2", domain.SideSell, 4, 0.6, 200),
		takerTrade("t3", domain.SideBuy, 7, 0.5, 150),
		takerTrade("t4", domain.SideSell, 8, 0.55, 250),
	}

	want := Calculate(trades, wallet, Options{})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Trade(nil), trades...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := Calculate(shuffled, wallet, Options{})
		assert.Equal(t, want, got, "permutation %d changed the result", i)
	}
}

func TestCalculateMatchTimeTieBreak(t *testing.T) {
	// Same match time, distinct ids: replay order must follow id order, not
	// insertion order.
	a := []domain.Trade{
		takerTrade("a", domain.SideBuy, 10, 0.3, 50),
		takerTrade("b", domain.SideSell, 10, 0.7, 50),
	}
	b := []domain.Trade{a[1], a[0]}

	assert.Equal(t, Calculate(a, wallet, Options{}), Calculate(b, wallet, Options{}))
}

func TestCalculateEpsilonSnap(t *testing.T) {
	trades := []domain.Trade{
		takerTrade("t1", domain.SideBuy, 10.001, 0.5, 1),
		takerTrade("t2", domain.SideSell, 10, 0.5, 2),
	}

	res := Calculate(trades, wallet, Options{})

	assert.Zero(t, res.Size, "residual below epsilon must not surface as open inventory")
	assert.Zero(t, res.CostBasis)
	assert.Zero(t, res.AvgPrice)
	assert.False(t, res.IsLong)
	assert.False(t, res.IsShort)
}

func TestCalculateShortFlipAndCover(t *testing.T) {
	trades := []domain.Trade{
		takerTrade("t1", domain.SideBuy, 10, 1.0, 1),
		takerTrade("t2", domain.SideSell, 15, 2.0, 2), // flips 5 short @ 2.0
		takerTrade("t3", domain.SideBuy, 5, 1.5, 3),   // covers the short
	}

	res := Calculate(trades, wallet, Options{})

	// 10×(2−1) realized on the long, 5×(2−1.5) on the short cover.
	assert.InDelta(t, 12.5, res.RealizedPnL, 1e-9)
	assert.Zero(t, res.Size)
	assert.Zero(t, res.CostBasis)
}

func TestCalculateMakerAttribution(t *testing.T) {
	other := "0x0000000000000000000000000000000000000dead"
	trade := domain.Trade{
		ID:        "t1",
		AssetID:   "asset-1",
		Maker:     other, // taker side belongs to someone else
		Side:      domain.SideSell,
		Size:      100,
		Price:     0.4,
		MatchTime: 10,
		MakerOrders: []domain.MakerOrder{
			{Maker: other, Side: domain.SideBuy, MatchedAmount: 60, Price: 0.4},
			{Maker: wallet, Side: domain.SideBuy, MatchedAmount: 40, Price: 0.4},
		},
	}

	res := Calculate([]domain.Trade{trade}, wallet, Options{})

	assert.InDelta(t, 40.0, res.Size, 1e-9)
	assert.InDelta(t, 0.4, res.AvgPrice, 1e-9)
	assert.Equal(t, 1, res.TotalEvents)
}

func TestCalculateCaseInsensitiveAddress(t *testing.T) {
	trades := []domain.Trade{takerTrade("t1", domain.SideBuy, 10, 0.5, 1)}

	res := Calculate(trades, "0xabc0000000000000000000000000000000000001", Options{})

	assert.InDelta(t, 10.0, res.Size, 1e-9)
}

func TestCalculateSkipsUnrelatedTrades(t *testing.T) {
	trade := takerTrade("t1", domain.SideBuy, 10, 0.5, 1)
	trade.Maker = "0x0000000000000000000000000000000000000dead"

	res := Calculate([]domain.Trade{trade}, wallet, Options{})

	assert.Zero(t, res.Size)
	assert.Zero(t, res.TotalEvents)
	// The trade still contributes the last-update watermark.
	assert.Equal(t, int64(1), res.LastUpdate)
}

func TestCalculateEmpty(t *testing.T) {
	res := Calculate(nil, wallet, Options{})
	assert.Zero(t, res.Size)
	assert.Zero(t, res.LastUpdate)
}

func TestFeeAdjust(t *testing.T) {
	// Default curve at the 0.5 midpoint: fee = 0.25·(0.25)²·bps/1000.
	got := DefaultFeeAdjust(100, 0.5, 100)
	want := (1 - 0.25*0.0625*0.1) * 100
	require.InDelta(t, want, got, 1e-12)

	trades := []domain.Trade{{
		ID: "t1", AssetID: "asset-1", Maker: wallet,
		Side: domain.SideBuy, Size: 100, Price: 0.5, FeeRateBps: 100, MatchTime: 1,
	}}

	plain := Calculate(trades, wallet, Options{})
	assert.InDelta(t, 100.0, plain.Size, 1e-9)

	adjusted := Calculate(trades, wallet, Options{EnableFeeAdjust: true})
	assert.InDelta(t, want, adjusted.Size, 1e-9)

	// Custom curve takes precedence over the default.
	custom := Calculate(trades, wallet, Options{
		EnableFeeAdjust: true,
		FeeAdjust:       func(size, price, bps float64) float64 { return size / 2 },
	})
	assert.InDelta(t, 50.0, custom.Size, 1e-9)
}
