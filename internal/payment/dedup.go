package payment

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "webhook_event:"

// RedisEventCache remembers fully-processed provider event IDs so duplicate
// deliveries can be short-circuited before touching the database. Entries
// expire; long-delayed redeliveries fall through to the idempotent issue
// path instead.
type RedisEventCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisEventCache(client *redis.Client) *RedisEventCache {
	return &RedisEventCache{Client: client, TTL: 24 * time.Hour}
}

// Processed reports whether the event ID was recorded by a prior successful
// delivery.
func (c *RedisEventCache) Processed(ctx context.Context, providerEventID string) (bool, error) {
	_, err := c.Client.Get(ctx, dedupKeyPrefix+providerEventID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records an event ID after its delivery was fully handled.
// Returns true the first time the ID is recorded.
func (c *RedisEventCache) MarkProcessed(ctx context.Context, providerEventID string) (bool, error) {
	return c.Client.SetNX(ctx, dedupKeyPrefix+providerEventID, "1", c.TTL).Result()
}
