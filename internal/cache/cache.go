// Package cache wraps go-redis v9 with the gateway's namespaced keys,
// JSON-serialized values, and TTL classes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentindex/gateway/internal/config"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

// Service is the process-wide cache facade. Writes are blind puts; a
// read-then-write race costs at most one idempotent recompute.
type Service struct {
	rdb *redis.Client
}

// New connects to Redis and verifies connectivity.
func New(cfg config.RedisConfig) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", cfg.Addr, err)
	}

	slog.Info("Redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return &Service{rdb: rdb}, nil
}

// NewFromClient wraps an existing client; used by tests with miniredis-style fakes.
func NewFromClient(rdb *redis.Client) *Service { return &Service{rdb: rdb} }

// Close shuts down the underlying client.
func (s *Service) Close() error { return s.rdb.Close() }

// Client exposes the underlying client for pub/sub consumers.
func (s *Service) Client() *redis.Client { return s.rdb }

// Ping reports connectivity for the health endpoint.
func (s *Service) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// GetJSON reads and decodes key into out. Returns ErrMiss when absent.
func (s *Service) GetJSON(ctx context.Context, key string, out interface{}) error {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and writes it with the given TTL.
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, buf, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (s *Service) Delete(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

// IncrWindow increments a fixed-window counter, setting the TTL on first
// increment. Returns the post-increment count. The rate limiter fails closed
// on error at the caller.
func (s *Service) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate window %s: %w", key, err)
	}
	return incr.Val(), nil
}

// TTL returns the remaining lifetime of a key.
func (s *Service) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.rdb.TTL(ctx, key).Result()
}
