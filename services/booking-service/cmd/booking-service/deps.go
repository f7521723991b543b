package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/redis/go-redis/v9"
)

// newRateLimit shares the limit across instances through Redis when
// REDIS_ADDR is set and falls back to a per-process limiter otherwise.
func newRateLimit(logger *slog.Logger) (httpx.Middleware, func(context.Context) error) {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "booking:rl")
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), rl.ReadyCheck()
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware(), nil
}
