package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures a limiter
type RateLimitConfig struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Window is the window size in seconds
	Window int
	// KeyFunc replaces the client IP key when set
	KeyFunc func(*gin.Context) string
}

// RateLimiter counts requests per key
type RateLimiter interface {
	// Allow counts one request and reports whether it fits the limit
	Allow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error)
	// Peek reports the state of the current window without counting
	Peek(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error)
}

// RateLimitResult is the outcome of a limiter check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	// ResetAt is the Unix time the current window ends
	ResetAt int64
	Limit   int
}

// fixedWindowScript increments the window counter and sets its expiry on
// the first hit.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// RedisRateLimiter is a fixed window limiter backed by redis
type RedisRateLimiter struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRateLimiter creates a limiter; keys are stored under
// <prefix>:ratelimit:
func NewRedisRateLimiter(redisClient *redis.Client, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{redis: redisClient, prefix: prefix, now: time.Now}
}

func (r *RedisRateLimiter) windowKey(key string, config *RateLimitConfig) (string, int64) {
	window := r.now().Unix() / int64(config.Window)
	return fmt.Sprintf("%s:ratelimit:%s:%d", r.prefix, key, window), (window + 1) * int64(config.Window)
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	windowKey, resetAt := r.windowKey(key, config)

	current, err := fixedWindowScript.Run(ctx, r.redis, []string{windowKey}, config.Window+1).Int()
	if err != nil {
		return nil, err
	}
	return newResult(current, config.Limit, resetAt, true), nil
}

func (r *RedisRateLimiter) Peek(ctx context.Context, key string, config *RateLimitConfig) (*RateLimitResult, error) {
	windowKey, resetAt := r.windowKey(key, config)

	current, err := r.redis.Get(ctx, windowKey).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return newResult(current, config.Limit, resetAt, false), nil
}

// newResult builds a result. counted tells whether current already
// includes the request being checked.
func newResult(current, limit int, resetAt int64, counted bool) *RateLimitResult {
	allowed := current <= limit
	remaining := limit - current
	if !counted {
		allowed = current < limit
	}
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{Allowed: allowed, Remaining: remaining, ResetAt: resetAt, Limit: limit}
}

// RateLimitMiddleware applies a limiter to gin routes
type RateLimitMiddleware struct {
	limiter RateLimiter
	config  *RateLimitConfig
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates the middleware
func NewRateLimitMiddleware(limiter RateLimiter, config *RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitMiddleware{limiter: limiter, config: config, logger: logger}
}

// Middleware counts every request. Limiter errors let the request through.
func (m *RateLimitMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := m.limiter.Allow(c.Request.Context(), m.generateKey(c), m.config)
		if err != nil {
			m.logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if !m.admit(c, result) {
			return
		}
		c.Next()
	}
}

// FailuresOnly only counts requests answered with an error status, so
// successful logins never lock a guardian out.
func (m *RateLimitMiddleware) FailuresOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := m.generateKey(c)

		result, err := m.limiter.Peek(c.Request.Context(), key, m.config)
		if err != nil {
			m.logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !m.admit(c, result) {
			return
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			if _, err := m.limiter.Allow(c.Request.Context(), key, m.config); err != nil {
				m.logger.Warn("Failed to count rejected request", zap.Error(err))
			}
		}
	}
}

func (m *RateLimitMiddleware) admit(c *gin.Context, result *RateLimitResult) bool {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

	if result.Allowed {
		return true
	}

	retryAfter := result.ResetAt - time.Now().Unix()
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "Demasiados intentos. Intenta de nuevo más tarde.",
		"retry_after": retryAfter,
	})
	return false
}

// generateKey keys on the client IP as resolved by gin, which only honours
// forwarding headers from the engine's trusted proxies.
func (m *RateLimitMiddleware) generateKey(c *gin.Context) string {
	if m.config.KeyFunc != nil {
		return m.config.KeyFunc(c)
	}
	return "ip:" + c.ClientIP()
}
