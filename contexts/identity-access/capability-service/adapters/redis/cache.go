// Package redisadapter caches active grant snapshots in Redis so capability
// checks avoid a repository round trip on the hot path.
package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"relaycreator/contexts/identity-access/capability-service/ports"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "capability_grants:"

type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Redis owns expiry for this adapter, so the caller clock is unused.
func (c *Cache) Get(ctx context.Context, userID string, _ time.Time) ([]ports.GrantSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, snapshotKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var snapshots []ports.GrantSnapshot
	if err := json.Unmarshal(raw, &snapshots); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.logger.Warn("capability cache entry unreadable",
			slog.String("event", "capability_cache_corrupt"),
			slog.String("user_id", userID),
		)
		_ = c.client.Del(ctx, snapshotKeyPrefix+userID).Err()
		return nil, false, nil
	}
	return snapshots, true, nil
}

func (c *Cache) Set(ctx context.Context, userID string, snapshots []ports.GrantSnapshot, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if snapshots == nil {
		snapshots = []ports.GrantSnapshot{}
	}
	raw, err := json.Marshal(snapshots)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKeyPrefix+userID, raw, ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, snapshotKeyPrefix+userID).Err()
}
