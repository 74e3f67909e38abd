package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultDedupeTTL = 24 * time.Hour

// EventDeduper remembers event keys for a TTL so that redelivered gateway
// webhooks are processed once.
type EventDeduper struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewEventDeduper(client goredis.UniversalClient, ttl time.Duration) (*EventDeduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &EventDeduper{client: client, ttl: ttl}, nil
}

// FirstSeen records key and reports whether this is its first occurrence.
func (d *EventDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+"webhook:"+key, time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return ok, nil
}

// Forget drops key so a failed event can be processed again on redelivery.
func (d *EventDeduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, keyPrefix+"webhook:"+key).Err(); err != nil {
		return fmt.Errorf("failed to forget webhook event: %w", err)
	}
	return nil
}
