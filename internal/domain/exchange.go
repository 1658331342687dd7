package domain

import "context"

// TradeQuery filters a trade-history fetch.
type TradeQuery struct {
	Market string // condition id filter, empty for all markets
	After  int64  // only trades updated after this unix timestamp
	Before int64  // only trades updated before this unix timestamp
}

// Exchange is the HTTP contract the reconciliation engine requires from the
// exchange collaborator. FetchOrder returns (nil, nil) when the order does
// not exist, which ingestion translates into cancellation of any previously
// stored record.
type Exchange interface {
	FetchTrades(ctx context.Context, q TradeQuery) ([]Trade, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	FetchPositions(ctx context.Context, address string) ([]PositionSummary, error)
}
