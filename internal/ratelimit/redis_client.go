package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis connection with graceful degradation: when Redis
// is not configured or unreachable, rate limiting runs purely in memory.
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// NewRedisClient connects to Redis, or returns a disabled client when no
// address is configured.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	if addr == "" {
		slog.Warn("redis not configured, rate limiting uses in-memory fallback only")
		return &RedisClient{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("redis ping failed, falling back to in-memory rate limiting", "addr", addr, "error", err)
		return &RedisClient{enabled: false, addr: addr}, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("redis connected", "addr", addr, "db", db)
	return &RedisClient{client: client, enabled: true, addr: addr}, nil
}

// IsEnabled reports whether the Redis path is usable.
func (r *RedisClient) IsEnabled() bool { return r != nil && r.enabled }

// GetClient returns the underlying Redis client.
func (r *RedisClient) GetClient() *redis.Client { return r.client }

// Close releases the connection pool.
func (r *RedisClient) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
