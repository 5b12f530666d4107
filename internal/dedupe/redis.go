package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dedupe:"

// RedisDeduper shares seen keys across replicas using SET NX with a TTL.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	created, err := d.client.SetNX(ctx, redisKeyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !created, nil
}
