package domain

import "strings"

// Side indicates whether a fill or order is a buy or a sell. Values match
// the CLOB wire encoding.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// MakerOrder is one maker sub-allocation inside a matched fill. A single
// trade can carry several maker orders, each belonging to a different
// wallet.
type MakerOrder struct {
	OrderID       string
	AssetID       string
	Maker         string // wallet address of the maker
	Owner         string
	Outcome       string
	Side          Side
	MatchedAmount float64
	Price         float64
	FeeRateBps    float64
}

// Trade is an immutable record of one matched fill as reported by the
// exchange, either over the user WebSocket channel or the data API. The
// top-level maker address identifies the taker-side wallet of the fill;
// maker sub-allocations are listed in MakerOrders.
type Trade struct {
	ID           string
	AssetID      string
	Market       string
	Outcome      string
	Maker        string // taker-side wallet address
	Owner        string
	TakerOrderID string
	Side         Side
	Size         float64
	Price        float64
	FeeRateBps   float64
	Status       string
	MatchTime    int64 // unix seconds
	LastUpdate   int64 // unix seconds
	TxHash       string
	MakerOrders  []MakerOrder
}

// TradeStatusFailed marks a fill the exchange reported as failed. Positions
// derived from a trade set containing a failed trade carry the IsFailed flag.
const TradeStatusFailed = "FAILED"

// ResolveOwner reports the outcome and asset id of the side of the trade
// belonging to the given wallet, checking the taker role first and then
// every maker sub-allocation. ok is false when the wallet appears in
// neither role; such trades are irrelevant to the tracked account and are
// skipped by ingestion.
func (t Trade) ResolveOwner(address string) (outcome, assetID string, ok bool) {
	if SameAddress(t.Maker, address) {
		return t.Outcome, t.AssetID, true
	}
	for _, mo := range t.MakerOrders {
		if SameAddress(mo.Maker, address) {
			return mo.Outcome, mo.AssetID, true
		}
	}
	return "", "", false
}

// SameAddress compares two hex wallet addresses ignoring case, since the
// exchange mixes checksummed and lowercase encodings across endpoints.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
