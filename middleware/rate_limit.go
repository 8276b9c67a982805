package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go-payment-service/common"
	"go-payment-service/pkg/cache"
	"go-payment-service/pkg/log"
)

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	WindowSize  time.Duration
	MaxRequests int64

	KeyPrefix    string
	KeyGenerator func(*gin.Context) string

	SkipPaths []string
}

// RateLimitInfo contains rate limit status information
type RateLimitInfo struct {
	Key        string
	Limit      int64
	Remaining  int64
	RetryAt    time.Time
	WindowSize time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		WindowSize:   time.Minute,
		MaxRequests:  100,
		KeyPrefix:    "rate_limit:",
		KeyGenerator: PrincipalKeyGenerator,
		SkipPaths:    []string{"/health", "/metrics"},
	}
}

// RateLimit counts requests per key in fixed windows stored in Redis. When
// the counter store is unreachable the request is let through.
func (m *middlewares) RateLimit(config ...RateLimitConfig) gin.HandlerFunc {
	cfg := m.rateLimit
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = PrincipalKeyGenerator
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rate_limit:"
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}

	skipPaths := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if m.cache == nil || skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := cfg.KeyPrefix + cfg.KeyGenerator(c)
		info, allowed, err := checkRateLimit(c.Request.Context(), m.cache, key, cfg, time.Now())
		if err != nil {
			m.logger.Warn("Rate limit counter unavailable", log.String("key", key), log.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(info.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(info.Remaining, 10))

		if !allowed {
			m.logger.Warn("Rate limit exceeded",
				log.String("key", info.Key),
				log.Int64("limit", info.Limit),
				log.String("client_ip", common.GetClientIP(c)),
				log.String("path", c.Request.URL.Path),
			)
			common.ResponseTooManyRequests(c,
				fmt.Sprintf("Too many requests. Limit %d requests per %v", info.Limit, info.WindowSize),
				info.RetryAt)
			return
		}

		c.Next()
	}
}

// checkRateLimit buckets now into a window and increments its counter. The
// window start is part of the key so counters never straddle windows.
func checkRateLimit(ctx context.Context, counter cache.Client, key string, cfg RateLimitConfig, now time.Time) (RateLimitInfo, bool, error) {
	windowStart := now.Truncate(cfg.WindowSize)
	resetTime := windowStart.Add(cfg.WindowSize)
	windowKey := key + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	current, err := counter.Increment(ctx, windowKey, 1, cfg.WindowSize)
	if err != nil {
		return RateLimitInfo{}, true, err
	}

	remaining := cfg.MaxRequests - current
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitInfo{
		Key:        key,
		Limit:      cfg.MaxRequests,
		Remaining:  remaining,
		RetryAt:    resetTime,
		WindowSize: cfg.WindowSize,
	}, current <= cfg.MaxRequests, nil
}

// PrincipalKeyGenerator keys authenticated callers by user id and everyone
// else by client IP.
func PrincipalKeyGenerator(c *gin.Context) string {
	if principal := common.GetPrincipalFromCtx(c); principal != nil {
		if principal.IsService() {
			return "svc:" + principal.Service
		}
		return "user:" + principal.UserID
	}
	return "ip:" + common.GetClientIP(c)
}
