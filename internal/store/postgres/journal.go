package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

// Journal implements domain.TradeJournal: an append-only record of every
// fill the store accepted. Re-accepted revisions of a fill (same id, newer
// match time) update the existing row.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal backed by the given connection pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Append writes a batch of fills using a pgx batch round trip.
func (j *Journal) Append(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fills (
			id, asset_id, market, outcome, maker, side,
			size, price, fee_rate_bps, status,
			match_time, last_update, tx_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13
		) ON CONFLICT (id) DO UPDATE SET
			size = EXCLUDED.size,
			price = EXCLUDED.price,
			status = EXCLUDED.status,
			match_time = EXCLUDED.match_time,
			last_update = EXCLUDED.last_update,
			tx_hash = EXCLUDED.tx_hash`

	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.AssetID, t.Market, t.Outcome, t.Maker, string(t.Side),
			t.Size, t.Price, t.FeeRateBps, t.Status,
			t.MatchTime, t.LastUpdate, t.TxHash,
		)
	}

	br := j.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: journal batch item %d: %w", i, err)
		}
	}
	return nil
}

// LastMatchTime returns the newest journaled match time for an asset, or
// the zero time when nothing is recorded. Useful for bounding backfills.
func (j *Journal) LastMatchTime(ctx context.Context, assetID string) (time.Time, error) {
	var ts *int64
	err := j.pool.QueryRow(ctx,
		"SELECT MAX(match_time) FROM fills WHERE asset_id = $1", assetID).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last match time: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return time.Unix(*ts, 0), nil
}
