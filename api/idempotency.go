package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores seen idempotency keys in Redis so resubmitted
// transactions are rejected on every instance, not just the one that saw
// the original. Keys expire after the configured TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(actorID, key string) string {
	return fmt.Sprintf("%s:%s", actorID, key)
}

// Add records the key for the actor if it was not seen before. It returns
// true when the key is new.
func (r *RedisDeduper) Add(ctx context.Context, actorID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(actorID, key), 1, r.ttl).Result()
}

// Remove forgets a key so a failed transaction may be resubmitted.
func (r *RedisDeduper) Remove(ctx context.Context, actorID, key string) error {
	return r.client.Del(ctx, r.key(actorID, key)).Err()
}
