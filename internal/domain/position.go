package domain

// Position is the derived per-asset view of the account's inventory. It is
// never stored authoritatively: every accepted trade triggers a full
// recompute from the asset's trade set, so readers never observe a
// partially applied position.
type Position struct {
	AssetID     string
	Market      string
	Outcome     string
	Size        float64 // signed, positive = long
	AvgPrice    float64
	Volume      float64 // cost basis of the remaining inventory
	RealizedPnL float64
	LastUpdate  int64 // unix seconds of the newest constituent trade
	IsFailed    bool  // any constituent trade in failed state
}

// PositionResult is the output of the FIFO calculator for one asset.
type PositionResult struct {
	Size        float64
	AvgPrice    float64
	RealizedPnL float64
	CostBasis   float64
	IsLong      bool
	IsShort     bool
	BuyEvents   int
	SellEvents  int
	TotalEvents int
	LastUpdate  int64
}

// PositionSummary is one row of the exchange's REST position summary, used
// to bootstrap state for positions opened before the watcher started.
type PositionSummary struct {
	AssetID  string
	Market   string
	Outcome  string
	Size     float64
	AvgPrice float64
}
