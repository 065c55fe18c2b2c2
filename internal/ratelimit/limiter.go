package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/scorewise/scorewise/internal/monitoring"
)

// Config holds rate limiter settings.
type Config struct {
	IPLimitPerMin int
	Burst         int
}

// DefaultConfig is suitable for a small internal scoring service.
func DefaultConfig() Config {
	return Config{IPLimitPerMin: 60, Burst: 10}
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter enforces a per-IP request budget using a Redis sliding window,
// degrading to per-key in-memory token buckets when Redis is unavailable.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallback   map[string]*rate.Limiter
	fallbackMu sync.Mutex
}

// NewRateLimiter builds a limiter over an optional Redis connection.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	rl := &RateLimiter{
		redisClient: redisClient,
		config:      config,
		metrics:     metrics,
		fallback:    make(map[string]*rate.Limiter),
	}
	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
	}
	go rl.cleanupFallback()
	return rl
}

// AllowIP checks the per-minute budget for one client IP.
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:ip:%s", ip)
	return rl.allow(ctx, key)
}

func (rl *RateLimiter) allow(ctx context.Context, key string) (*Result, error) {
	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key)
		if err == nil {
			return result, nil
		}
		slog.Warn("redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.RateLimitRedisError.Inc()
		}
	}
	if rl.metrics != nil {
		rl.metrics.RateLimitFallback.Inc()
	}
	return rl.allowFallback(key), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   rl.config.IPLimitPerMin,
		Burst:  rl.config.IPLimitPerMin,
		Period: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check: %w", err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (rl *RateLimiter) allowFallback(key string) *Result {
	rl.fallbackMu.Lock()
	limiter, ok := rl.fallback[key]
	if !ok {
		burst := rl.config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(rl.config.IPLimitPerMin)/60.0), burst)
		rl.fallback[key] = limiter
	}
	rl.fallbackMu.Unlock()

	allowed := limiter.Allow()
	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	result := &Result{
		Allowed:   allowed,
		Limit:     rl.config.IPLimitPerMin,
		Remaining: remaining,
		ResetAt:   time.Now().Add(time.Minute),
	}
	if !allowed {
		result.RetryAfter = time.Until(result.ResetAt)
	}
	return result
}

// cleanupFallback bounds the fallback map; per-key access times are not worth
// tracking at this scale.
func (rl *RateLimiter) cleanupFallback() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		rl.fallbackMu.Lock()
		if len(rl.fallback) > 1000 {
			slog.Info("clearing fallback rate limiters", "count", len(rl.fallback))
			rl.fallback = make(map[string]*rate.Limiter)
		}
		rl.fallbackMu.Unlock()
	}
}
