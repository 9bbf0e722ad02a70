package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/order-ledger/internal/order/domain"
)

const (
	versionKey = "orderledger:stats:version"
	statsKey   = "orderledger:stats:v%d"
)

type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// StatsCache keeps the last computed stats per data version. Invalidate moves
// the version forward, which orphans every earlier entry.
type StatsCache struct {
	rdb Client
	ttl time.Duration
}

func NewStatsCache(rdb Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

func (c *StatsCache) Get(ctx context.Context) (domain.Stats, int64, bool, error) {
	version, err := c.rdb.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Stats{}, 0, false, err
	}

	raw, err := c.rdb.Get(ctx, fmt.Sprintf(statsKey, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Stats{}, version, false, nil
	}
	if err != nil {
		return domain.Stats{}, version, false, err
	}

	var stats domain.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return domain.Stats{}, version, false, fmt.Errorf("decode cached stats: %w", err)
	}
	return stats, version, true, nil
}

func (c *StatsCache) Set(ctx context.Context, version int64, stats domain.Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(statsKey, version), raw, c.ttl).Err()
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, versionKey).Err()
}
