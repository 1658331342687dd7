package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

// positionsChannel carries a JSON copy of every published snapshot.
const positionsChannel = "positions:updates"

// PositionCache implements domain.PositionSink: every position snapshot the
// store publishes is mirrored into a Redis hash and announced on a pub/sub
// channel.
//
// Key schema:
//
//	position:{assetID} - hash with market, outcome, size, avg_price,
//	                     volume, realized_pnl, last_update, is_failed
type PositionCache struct {
	rdb *redis.Client
}

// NewPositionCache creates a PositionCache backed by the given Client.
func NewPositionCache(c *Client) *PositionCache {
	return &PositionCache{rdb: c.Underlying()}
}

func positionKey(assetID string) string { return "position:" + assetID }

// SetPosition writes the snapshot hash and publishes the update.
func (pc *PositionCache) SetPosition(ctx context.Context, pos domain.Position) error {
	key := positionKey(pos.AssetID)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"market", pos.Market,
		"outcome", pos.Outcome,
		"size", strconv.FormatFloat(pos.Size, 'f', -1, 64),
		"avg_price", strconv.FormatFloat(pos.AvgPrice, 'f', -1, 64),
		"volume", strconv.FormatFloat(pos.Volume, 'f', -1, 64),
		"realized_pnl", strconv.FormatFloat(pos.RealizedPnL, 'f', -1, 64),
		"last_update", strconv.FormatInt(pos.LastUpdate, 10),
		"is_failed", strconv.FormatBool(pos.IsFailed),
	)

	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("redis: marshal position: %w", err)
	}
	pipe.Publish(ctx, positionsChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set position %s: %w", pos.AssetID, err)
	}
	return nil
}

// GetPosition reads a mirrored snapshot back. ok is false when the asset
// has no mirrored position.
func (pc *PositionCache) GetPosition(ctx context.Context, assetID string) (domain.Position, bool, error) {
	fields, err := pc.rdb.HGetAll(ctx, positionKey(assetID)).Result()
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("redis: get position %s: %w", assetID, err)
	}
	if len(fields) == 0 {
		return domain.Position{}, false, nil
	}

	pos := domain.Position{
		AssetID: assetID,
		Market:  fields["market"],
		Outcome: fields["outcome"],
	}
	pos.Size, _ = strconv.ParseFloat(fields["size"], 64)
	pos.AvgPrice, _ = strconv.ParseFloat(fields["avg_price"], 64)
	pos.Volume, _ = strconv.ParseFloat(fields["volume"], 64)
	pos.RealizedPnL, _ = strconv.ParseFloat(fields["realized_pnl"], 64)
	pos.LastUpdate, _ = strconv.ParseInt(fields["last_update"], 10, 64)
	pos.IsFailed, _ = strconv.ParseBool(fields["is_failed"])

	return pos, true, nil
}

// Subscribe returns a pub/sub subscription to position updates. The caller
// owns the subscription and must close it.
func (pc *PositionCache) Subscribe(ctx context.Context) *redis.PubSub {
	return pc.rdb.Subscribe(ctx, positionsChannel)
}
