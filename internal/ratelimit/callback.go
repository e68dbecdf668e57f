package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/zutali/conmart/internal/config"
)

const (
	keyCallbackIP       = "payments:callback:ip:%s"
	keyCallbackEndpoint = "payments:callback:endpoint"
)

// CallbackLimiter throttles the public gateway callback endpoint. The
// gateway retries on 429, so shedding load here is safe.
type CallbackLimiter struct {
	enabled bool

	bucket *TokenBucket

	rate  float64
	burst int
}

func NewCallbackLimiter(cfg config.Config, client *redis.Client) *CallbackLimiter {
	if client == nil || cfg.CallbackRate <= 0 || cfg.CallbackBurst <= 0 {
		return &CallbackLimiter{enabled: false}
	}
	return &CallbackLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.CallbackRate,
		burst:   cfg.CallbackBurst,
	}
}

// Allow checks both the per-IP and the endpoint-wide budget. When redis is
// unreachable the limiter fails open: dropping valid payment callbacks is
// worse than letting a burst through.
func (l *CallbackLimiter) Allow(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if l == nil || !l.enabled {
		return &RateLimitResult{Allowed: true}, nil
	}

	clientIP = strings.TrimSpace(clientIP)
	if clientIP != "" {
		res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCallbackIP, clientIP), l.rate, l.burst)
		if err != nil {
			return &RateLimitResult{Allowed: true}, err
		}
		if !res.Allowed {
			return res, nil
		}
	}

	// The endpoint-wide bucket absorbs distributed bursts.
	res, err := l.bucket.Allow(ctx, keyCallbackEndpoint, l.rate*10, l.burst*10)
	if err != nil {
		return &RateLimitResult{Allowed: true}, err
	}
	return res, nil
}

// Enabled reports whether the limiter is active.
func (l *CallbackLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// NewRedisClient builds the shared redis client, or nil when unconfigured.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}
