package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	waitStep                 = 10 * time.Millisecond
	waitMax                  = 50 * time.Millisecond
)

// fixedWindowScript counts calls in a one-second bucket and reports whether
// the caller is still under the limit.
var fixedWindowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], 2)
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

// RedisRateLimiter is a per-channel fixed-window limiter shared by every
// worker process pointed at the same Redis. Channels without an override use
// the default limit.
type RedisRateLimiter struct {
	client    goredis.UniversalClient
	limit     int64
	overrides map[string]int64
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRedisRateLimiter allows limitPerSec sends per second on every channel,
// except the ones named in channelLimits. Non-positive values fall back to
// the default.
func NewRedisRateLimiter(client goredis.UniversalClient, limitPerSec int, channelLimits map[string]int) (*RedisRateLimiter, error) {
	limiter, err := newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
	if err != nil {
		return nil, err
	}
	for channel, limit := range channelLimits {
		channel = strings.ToLower(strings.TrimSpace(channel))
		if channel == "" || limit <= 0 {
			continue
		}
		limiter.overrides[channel] = int64(limit)
	}
	return limiter, nil
}

func newRedisRateLimiter(
	client goredis.UniversalClient,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:    client,
		limit:     limitPerSec,
		overrides: make(map[string]int64),
		now:       nowFn,
		sleep:     sleepFn,
	}, nil
}

// Limit returns the per-second budget of channel.
func (r *RedisRateLimiter) Limit(channel string) int64 {
	if limit, ok := r.overrides[strings.ToLower(strings.TrimSpace(channel))]; ok {
		return limit
	}
	return r.limit
}

func (r *RedisRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	channel = strings.ToLower(strings.TrimSpace(channel))
	if channel == "" {
		return false, fmt.Errorf("channel is required")
	}

	key := fmt.Sprintf("%sratelimit:%s:%d", keyPrefix, channel, r.now().UTC().Unix())
	allowed, err := fixedWindowScript.Run(ctx, r.client, []string{key}, r.Limit(channel)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return allowed == 1, nil
}

// Wait blocks until the channel has capacity or ctx is done.
func (r *RedisRateLimiter) Wait(ctx context.Context, channel string) error {
	delay := waitStep
	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay+waitStep, waitMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
