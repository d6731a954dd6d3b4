// Package ratelimit implements the outbound send gate shared by all tenants.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/messaging-gateway/pkg/logging"
)

var tracer = otel.Tracer("gateway.internal.ratelimit")

// Result is the outcome of a gate check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Count      int
	Limit      int
}

// Config sets the fixed window applied to every scope key.
type Config struct {
	MaxPerWindow int
	Window       time.Duration
}

// DefaultConfig returns the default outbound limits.
func DefaultConfig() Config {
	return Config{MaxPerWindow: 60, Window: time.Minute}
}

// RedisLimiter counts calls per scope key in fixed Redis windows.
type RedisLimiter struct {
	redis  *redis.Client
	config Config
	logger *logging.Logger
}

// NewRedisLimiter creates a limiter backed by Redis INCR and EXPIRE NX.
func NewRedisLimiter(redisClient *redis.Client, cfg Config, logger *logging.Logger) *RedisLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxPerWindow <= 0 || cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	return &RedisLimiter{redis: redisClient, config: cfg, logger: logger}
}

// CheckLimit records one call against scopeKey and reports whether it is allowed.
// Redis failures fail open so a cache outage does not stop customer replies.
func (l *RedisLimiter) CheckLimit(ctx context.Context, scopeKey string) (Result, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.check")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.ratelimit.scope", scopeKey))

	key := fmt.Sprintf("ratelimit:%s", scopeKey)
	// INCR and EXPIRE NX run in one transaction so a counter never outlives
	// its window without a TTL.
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("rate limit check failed", "error", err, "scope", scopeKey)
		return Result{Allowed: true, Limit: l.config.MaxPerWindow}, nil
	}
	count := incr.Val()

	result := Result{
		Allowed: int(count) <= l.config.MaxPerWindow,
		Count:   int(count),
		Limit:   l.config.MaxPerWindow,
	}
	if !result.Allowed {
		ttl, err := l.redis.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = l.config.Window
		}
		result.RetryAfter = ttl
		span.SetAttributes(attribute.Bool("gateway.ratelimit.limited", true))
		l.logger.Warn("outbound rate limit exceeded", "scope", scopeKey, "count", count, "max", l.config.MaxPerWindow)
	}
	return result, nil
}

// Reset clears the counter for a scope (admin use and tests).
func (l *RedisLimiter) Reset(ctx context.Context, scopeKey string) error {
	return l.redis.Del(ctx, fmt.Sprintf("ratelimit:%s", scopeKey)).Err()
}

// Unlimited always allows. Used when Redis is not configured.
type Unlimited struct{}

// CheckLimit implements the gate without limiting.
func (Unlimited) CheckLimit(context.Context, string) (Result, error) {
	return Result{Allowed: true}, nil
}
