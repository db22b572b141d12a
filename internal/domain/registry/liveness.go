package registry

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const livenessKeyPrefix = "device:lastseen:"

// Liveness tracks when each device was last heard from, in Redis. It backs
// fleet dashboards that need sub-second freshness without hitting Postgres
// on every ingestion.
type Liveness struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLiveness creates a liveness tracker. Entries expire after ttl so a
// silent device naturally falls off the board.
func NewLiveness(rdb *redis.Client, ttl time.Duration) *Liveness {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Liveness{rdb: rdb, ttl: ttl}
}

// Touch records that a device was just heard from.
func (l *Liveness) Touch(ctx context.Context, deviceID string, at time.Time) error {
	return l.rdb.Set(ctx, livenessKeyPrefix+deviceID, at.UTC().Format(time.RFC3339Nano), l.ttl).Err()
}

// LastSeen returns when the device was last heard from. The second return is
// false when the device has no liveness entry.
func (l *Liveness) LastSeen(ctx context.Context, deviceID string) (time.Time, bool, error) {
	val, err := l.rdb.Get(ctx, livenessKeyPrefix+deviceID).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}
