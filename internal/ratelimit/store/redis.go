package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tripkey:ratelimit:"

// Redis is a CounterStore shared by every instance pointing at the same server.
// The window starts at the first increment: PEXPIRE NX only sets the TTL once.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (s *Redis) Increment(ctx context.Context, key string, length time.Duration) (int, time.Time, error) {
	k := redisKeyPrefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		// go-redis has no PExpireNX helper; send the raw command to keep millisecond windows.
		pipe.Do(ctx, "pexpire", k, length.Milliseconds(), "nx")
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment %s: %w", key, err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		// Key lost its TTL; restart the window rather than counting forever.
		if err := s.client.PExpire(ctx, k, length).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("expire %s: %w", key, err)
		}
		remaining = length
	}
	return int(incr.Val()), s.now().Add(remaining), nil
}
