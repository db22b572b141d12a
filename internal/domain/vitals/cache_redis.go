package vitals

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const latestKeyPrefix = "vitals:latest:"

type latestCacheRedis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLatestCacheRedis creates a Redis-backed latest-reading cache. Entries
// expire after ttl so a stale cache never outlives the reading stream by
// much.
func NewLatestCacheRedis(rdb *redis.Client, ttl time.Duration) LatestCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &latestCacheRedis{rdb: rdb, ttl: ttl}
}

func (c *latestCacheRedis) SetLatest(ctx context.Context, r *Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, latestKeyPrefix+r.PatientID.String(), data, c.ttl).Err()
}

func (c *latestCacheRedis) GetLatest(ctx context.Context, patientID uuid.UUID) (*Reading, bool, error) {
	data, err := c.rdb.Get(ctx, latestKeyPrefix+patientID.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var r Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}
