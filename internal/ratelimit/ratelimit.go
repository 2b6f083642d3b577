// Package ratelimit implements a fixed-window counter on Redis, shared by
// the vote and comment-creation endpoints.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
	limits map[string]int // per action; zero or absent disables
	window time.Duration
	now    func() time.Time
}

func New(client *redis.Client, limits map[string]int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		limits: limits,
		window: window,
		now:    time.Now,
	}
}

// Allow consumes one slot from the current window for (action, key). The
// first hit in a window sets the key's expiry. Redis errors report
// allowed=true alongside the error.
func (l *Limiter) Allow(ctx context.Context, action, key string) (bool, error) {
	limit := l.limits[action]
	if limit <= 0 {
		return true, nil
	}
	window := l.now().Unix() / int64(l.window.Seconds())
	counterKey := fmt.Sprintf("rl:%s:%s:%d", action, key, window)

	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return true, fmt.Errorf("incr rate counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, counterKey, l.window).Err(); err != nil {
			return true, fmt.Errorf("expire rate counter: %w", err)
		}
	}
	return count <= int64(limit), nil
}
