package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// floodScript is a sliding-window counter over a sorted set.
var floodScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    return 0
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)
return 1
`)

// InboundLimiter decides whether a contact's message may reach the dialogue engine.
type InboundLimiter interface {
	Allow(ctx context.Context, tenantID, contactID string) bool
}

// FloodGuard caps how many messages per window a single contact can push
// through the dialogue engine. Counters live in redis so replicas share them.
type FloodGuard struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewFloodGuard(client *redis.Client, limit int, window time.Duration) *FloodGuard {
	return &FloodGuard{client: client, limit: limit, window: window}
}

// Allow fails open: a redis error lets the message through.
func (g *FloodGuard) Allow(ctx context.Context, tenantID, contactID string) bool {
	if g.limit <= 0 {
		return true
	}

	key := fmt.Sprintf("flood:%s:%s", tenantID, contactID)
	allowed, err := floodScript.Run(
		ctx,
		g.client,
		[]string{key},
		time.Now().UnixMilli(),
		g.window.Milliseconds(),
		g.limit,
	).Int()
	if err != nil {
		log.Warn().
			Err(err).
			Str("tenantId", tenantID).
			Msg("flood guard check failed, allowing message")
		return true
	}

	return allowed == 1
}
