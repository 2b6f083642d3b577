// Package session resolves bearer tokens to viewers. Token issuance lives in
// the external auth service; this store only reads (and, for that service,
// writes) the token mapping.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when a token is unknown or expired.
var ErrNoSession = errors.New("session not found")

// Viewer identifies the user on whose behalf reads are projected.
type Viewer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// RedisStore maps session tokens to viewers with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "viewer:"}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "viewer:"}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// Save stores a token for the auth boundary (and tests).
func (s *RedisStore) Save(ctx context.Context, token string, viewer Viewer, ttl time.Duration) error {
	payload, err := json.Marshal(viewer)
	if err != nil {
		return fmt.Errorf("marshal viewer: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if err := s.client.Set(ctx, s.key(token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lookup resolves a token to its viewer.
func (s *RedisStore) Lookup(ctx context.Context, token string) (Viewer, error) {
	payload, err := s.client.Get(ctx, s.key(token)).Result()
	if err == redis.Nil {
		return Viewer{}, ErrNoSession
	}
	if err != nil {
		return Viewer{}, fmt.Errorf("lookup session: %w", err)
	}

	var viewer Viewer
	if err := json.Unmarshal([]byte(payload), &viewer); err != nil {
		return Viewer{}, fmt.Errorf("unmarshal viewer: %w", err)
	}
	return viewer, nil
}

// Revoke deletes a token.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
