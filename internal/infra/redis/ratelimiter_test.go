package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestNewRedisRateLimiter(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, 10, nil); err == nil {
		t.Fatal("expected error for nil client")
	}

	limiter, err := NewRedisRateLimiter(newTestRedisClient(t), 0, map[string]int{
		"WHATSAPP": 2,
		" ":        7,
		"webhook":  0,
	})
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	testCases := []struct {
		channel string
		want    int64
	}{
		{channel: "email", want: defaultLimitPerSec},
		{channel: "whatsapp", want: 2},
		{channel: " WhatsApp ", want: 2},
		{channel: "webhook", want: defaultLimitPerSec},
	}
	for _, tc := range testCases {
		if got := limiter.Limit(tc.channel); got != tc.want {
			t.Errorf("Limit(%q) = %d, want %d", tc.channel, got, tc.want)
		}
	}
}

func TestRedisRateLimiterAllowPerChannelWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_760_000_000, 0)
	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 3, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}
	limiter.overrides["whatsapp"] = 1

	steps := []struct {
		name    string
		channel string
		advance time.Duration
		want    bool
	}{
		{name: "whatsapp first", channel: "whatsapp", want: true},
		{name: "whatsapp over budget", channel: "WHATSAPP", want: false},
		{name: "email unaffected", channel: "email", want: true},
		{name: "email second", channel: "email", want: true},
		{name: "email third", channel: "email", want: true},
		{name: "email over budget", channel: "email", want: false},
		{name: "whatsapp next window", channel: "whatsapp", advance: time.Second, want: true},
		{name: "email next window", channel: "email", want: true},
	}

	for _, step := range steps {
		now = now.Add(step.advance)
		allowed, err := limiter.Allow(context.Background(), step.channel)
		if err != nil {
			t.Fatalf("%s: Allow() error = %v", step.name, err)
		}
		if allowed != step.want {
			t.Fatalf("%s: allowed = %v, want %v", step.name, allowed, step.want)
		}
	}
}

func TestRedisRateLimiterAllowValidation(t *testing.T) {
	t.Parallel()

	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 1, nil, nil)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty channel")
	}

	var uninitialized *RedisRateLimiter
	if _, err := uninitialized.Allow(context.Background(), "email"); err == nil {
		t.Fatal("expected error for nil limiter")
	}
}

func TestRedisRateLimiterAllowRedisDown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	limiter, err := newRedisRateLimiter(rdb, 1, nil, nil)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "email"); err == nil {
		t.Fatal("expected error when redis is unreachable")
	}
}

func TestRedisRateLimiterWaitBacksOff(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_760_000_100, 0)
	var delays []time.Duration
	limiter, err := newRedisRateLimiter(
		newTestRedisClient(t),
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			if len(delays) == 6 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "webhook"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if len(delays) != 0 {
		t.Fatalf("first Wait() slept %d times, want 0", len(delays))
	}

	if err := limiter.Wait(context.Background(), "webhook"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
	}
}

func TestRedisRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_760_000_300, 0)
	limiter, err := newRedisRateLimiter(newTestRedisClient(t), 1, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "whatsapp"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, "whatsapp")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}
