package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupLimiter(t *testing.T, limits map[string]int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, limits, window), s
}

func TestAllowUnderLimit(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{"vote": 3}, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "vote", "user_1")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestDenyOverLimit(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{"comment": 2}, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow(ctx, "comment", "user_1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, err := limiter.Allow(ctx, "comment", "user_1")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if ok {
		t.Error("third request should be denied")
	}
}

func TestSeparateKeysAndActions(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{"vote": 1, "comment": 1}, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "vote", "user_1"); !ok {
		t.Fatal("first vote by user_1 should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "vote", "user_2"); !ok {
		t.Error("user_2 should have an independent window")
	}
	if ok, _ := limiter.Allow(ctx, "comment", "user_1"); !ok {
		t.Error("actions should have independent windows")
	}
	if ok, _ := limiter.Allow(ctx, "vote", "user_1"); ok {
		t.Error("second vote by user_1 should be denied")
	}
}

func TestWindowRollover(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{"vote": 1, "comment": 1}, time.Minute)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return base }

	if ok, _ := limiter.Allow(ctx, "vote", "user_1"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "vote", "user_1"); ok {
		t.Fatal("second request in same window should be denied")
	}

	limiter.now = func() time.Time { return base.Add(time.Minute) }
	if ok, _ := limiter.Allow(ctx, "vote", "user_1"); !ok {
		t.Error("request in next window should be allowed")
	}
}

func TestZeroLimitDisables(t *testing.T) {
	limiter, _ := setupLimiter(t, map[string]int{"vote": 0}, time.Minute)
	for i := 0; i < 5; i++ {
		if ok, _ := limiter.Allow(context.Background(), "vote", "user_1"); !ok {
			t.Fatal("zero limit should disable limiting")
		}
	}
}
