package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ProtocolSequence hands out gap-tolerant, strictly increasing numbers per
// calendar year. A number is consumed even if the caller later fails.
type ProtocolSequence struct {
	client goredis.UniversalClient
}

func NewProtocolSequence(client goredis.UniversalClient) (*ProtocolSequence, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &ProtocolSequence{client: client}, nil
}

func (s *ProtocolSequence) Next(ctx context.Context, year int) (int64, error) {
	key := fmt.Sprintf("%sprotocol:seq:%d", keyPrefix, year)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Keep last year's counter around long enough for late writers.
	pipe.Expire(ctx, key, 400*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to advance protocol sequence: %w", err)
	}

	return incr.Val(), nil
}
