package domain

import "context"

// TradeJournal persists accepted trades for offline inspection. Appends are
// best-effort: a journal failure never blocks or fails ingestion.
type TradeJournal interface {
	Append(ctx context.Context, trades []Trade) error
}

// PositionSink receives every derived position snapshot after it is
// published to in-process readers. Used to mirror state into external
// caches.
type PositionSink interface {
	SetPosition(ctx context.Context, pos Position) error
}
