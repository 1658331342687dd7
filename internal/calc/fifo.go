// Package calc derives position state from raw trade sets using FIFO lot
// accounting. Calculation is pure: no I/O, no shared state, safe to call
// concurrently on independent inputs.
package calc

import (
	"sort"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

// Epsilon is the tolerance used for every intermediate and final size/cost
// comparison. Upstream fee math works in floats and leaves residues around
// 1e-7; any magnitude below Epsilon is snapped to exactly zero so that ghost
// positions never surface as open inventory.
const Epsilon = 0.01

// FeeAdjustFunc scales a traded size down by the fee implied by (price,
// feeRateBps). Exchanges shape fees differently, so the curve is pluggable.
type FeeAdjustFunc func(size, price, feeRateBps float64) float64

// DefaultFeeAdjust is the convexity-shaped fee curve of the CLOB:
// size × (1 − 0.25·(p·(1−p))²·bps/1000).
func DefaultFeeAdjust(size, price, feeRateBps float64) float64 {
	mult := 0.0
	if feeRateBps != 0 {
		mult = feeRateBps / 1000
	}
	fee := 0.25 * (price * (1 - price)) * (price * (1 - price)) * mult
	return (1 - fee) * size
}

// Options tune a calculation run.
type Options struct {
	// EnableFeeAdjust scales event sizes by the fee curve before they enter
	// the lot queue.
	EnableFeeAdjust bool

	// FeeAdjust overrides DefaultFeeAdjust when non-nil.
	FeeAdjust FeeAdjustFunc
}

// event is one signed fill extracted from a trade: buys positive, sells
// negative. tradeID breaks match-time ties deterministically.
type event struct {
	size      float64
	price     float64
	matchTime int64
	tradeID   string
}

// lot is one FIFO-queued chunk of acquired size at a price. Short inventory
// is represented by negative-size lots, keeping buys and sells symmetric.
type lot struct {
	size  float64
	price float64
}

// clean snaps float noise below Epsilon to exactly zero.
func clean(x float64) float64 {
	if x < Epsilon && x > -Epsilon {
		return 0
	}
	return x
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// opposed reports whether a queued lot and an incoming event are on
// opposite sides.
func opposed(lotSize, eventSize float64) bool {
	return (lotSize > 0) != (eventSize > 0)
}

// Calculate derives the position for one asset from the full set of its
// trades, attributing fills to the account at address. Trades where the
// address appears in neither the taker role nor any maker sub-allocation
// contribute nothing; that is a normal occurrence, not an error.
//
// Events are replayed in match-time order (ties broken by trade id, then by
// sub-allocation order within a trade) through a FIFO lot queue. A sell that
// exceeds the queued inventory flips the position short by pushing a
// negative lot.
func Calculate(trades []domain.Trade, address string, opts Options) domain.PositionResult {
	adjust := func(size, price, feeRateBps float64) float64 {
		if !opts.EnableFeeAdjust || feeRateBps <= 0 {
			return size
		}
		fn := opts.FeeAdjust
		if fn == nil {
			fn = DefaultFeeAdjust
		}
		return fn(size, price, feeRateBps)
	}

	var (
		events     []event
		buyEvents  int
		sellEvents int
		lastUpdate int64
	)

	for _, trade := range trades {
		if trade.MatchTime > lastUpdate {
			lastUpdate = trade.MatchTime
		}

		isMakerOrder := false
		for _, mo := range trade.MakerOrders {
			if !domain.SameAddress(mo.Maker, address) {
				continue
			}
			isMakerOrder = true
			size := adjust(mo.MatchedAmount, mo.Price, mo.FeeRateBps)
			if mo.Side == domain.SideBuy {
				events = append(events, event{size, mo.Price, trade.MatchTime, trade.ID})
				buyEvents++
			} else {
				events = append(events, event{-size, mo.Price, trade.MatchTime, trade.ID})
				sellEvents++
			}
		}

		if !isMakerOrder && domain.SameAddress(trade.Maker, address) {
			size := adjust(trade.Size, trade.Price, trade.FeeRateBps)
			if trade.Side == domain.SideBuy {
				events = append(events, event{size, trade.Price, trade.MatchTime, trade.ID})
				buyEvents++
			} else {
				events = append(events, event{-size, trade.Price, trade.MatchTime, trade.ID})
				sellEvents++
			}
		}
	}

	// Stable sort keeps sub-allocation order within one trade; the trade-id
	// tie-break makes the replay independent of input permutation.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].matchTime != events[j].matchTime {
			return events[i].matchTime < events[j].matchTime
		}
		return events[i].tradeID < events[j].tradeID
	})

	var (
		queue       []lot
		realizedPnL float64
	)

	// Buys and sells are matched identically by sign: an incoming event
	// consumes opposite-sign lots from the front, accruing realized P&L per
	// consumed chunk, and any remainder becomes inventory. So a buy closes
	// short lots exactly the way a sell closes long lots.
	for _, ev := range events {
		remaining := clean(ev.size)

		for abs(remaining) > Epsilon && len(queue) > 0 && opposed(queue[0].size, remaining) {
			front := queue[0]
			if abs(front.size) <= abs(remaining)+Epsilon {
				// Lot fully consumed.
				realizedPnL += (ev.price - front.price) * front.size
				remaining = clean(remaining + front.size)
				queue = queue[1:]
			} else {
				realizedPnL += (ev.price - front.price) * -remaining
				queue[0].size = clean(front.size + remaining)
				remaining = 0
			}
		}

		if remaining > Epsilon {
			queue = append(queue, lot{remaining, ev.price})
		} else if remaining < -Epsilon {
			// Unmatched sell remainder opens or extends a short at the front.
			queue = append([]lot{{remaining, ev.price}}, queue...)
		}
	}

	var totalSize, costBasis float64
	for _, l := range queue {
		totalSize += l.size
		costBasis += clean(l.size) * l.price
	}
	totalSize = clean(totalSize)
	costBasis = clean(costBasis)
	if totalSize == 0 {
		costBasis = 0
	}

	avgPrice := 0.0
	if totalSize != 0 {
		avgPrice = costBasis / totalSize
	}

	return domain.PositionResult{
		Size:        totalSize,
		AvgPrice:    avgPrice,
		RealizedPnL: realizedPnL,
		CostBasis:   costBasis,
		IsLong:      totalSize > 0,
		IsShort:     totalSize < 0,
		BuyEvents:   buyEvents,
		SellEvents:  sellEvents,
		TotalEvents: buyEvents + sellEvents,
		LastUpdate:  lastUpdate,
	}
}
