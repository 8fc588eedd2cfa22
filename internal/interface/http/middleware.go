package http

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/cashtags/internal/domain/subscription"
	"github.com/yanqian/cashtags/internal/infra/config"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	rateLimitWindow = time.Minute
)

func errorHandlingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		httpErr := asHTTPError(c.Errors.Last().Err)
		message := httpErr.Message
		if message == "" {
			message = httpErr.Error()
		}

		if httpErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "code", httpErr.Code, "status", httpErr.Status, "path", c.Request.URL.Path, "requestId", c.GetString(requestIDKey), "error", httpErr.Err)
		} else {
			logger.Warn("request failed", "code", httpErr.Code, "status", httpErr.Status, "path", c.Request.URL.Path, "requestId", c.GetString(requestIDKey), "error", httpErr.Err)
		}

		c.JSON(httpErr.Status, gin.H{
			"error": gin.H{
				"code":    httpErr.Code,
				"message": message,
			},
		})
	}
}

// recoveryMiddleware turns panics into 500 responses. http.ErrAbortHandler is re-raised so the
// server drops the connection, which is how a broken summary stream reaches the client.
func recoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("panic recovered", "path", c.Request.URL.Path, "requestId", c.GetString(requestIDKey), "panic", fmt.Sprint(rec))
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"code": "internal_error", "message": "something went wrong"},
				})
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "latency_ms", latency.Milliseconds(), "requestId", c.GetString(requestIDKey))
	}
}

// tieredRateLimitMiddleware limits authenticated users by the tier their access token carries.
// It must run after authMiddleware.
func tieredRateLimitMiddleware(cfg config.RateLimitConfig, subs subscription.Service, logger *slog.Logger) gin.HandlerFunc {
	if !cfg.Enabled || subs == nil {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := newUserRateLimiter()
	return func(c *gin.Context) {
		claims, ok := getClaims(c)
		if !ok {
			c.Next()
			return
		}
		perMinute := subs.RateLimit(subscription.ParseTier(claims.Tier))
		if limiter.allow(strconv.FormatInt(claims.UserID, 10), perMinute) {
			c.Next()
			return
		}
		logger.Warn("rate limit exceeded", "userId", claims.UserID, "limit", perMinute, "path", c.Request.URL.Path)
		c.Header("Retry-After", strconv.Itoa(int(rateLimitWindow.Seconds())))
		abortWithError(c, NewHTTPError(http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded", nil))
	}
}

// userRateLimiter is a token bucket per key whose capacity equals its per-minute rate.
type userRateLimiter struct {
	buckets map[string]*bucket
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func newUserRateLimiter() *userRateLimiter {
	return &userRateLimiter{
		buckets: make(map[string]*bucket),
		ttl:     5 * time.Minute,
		now:     time.Now,
	}
}

func (l *userRateLimiter) allow(key string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	capacity := float64(perMinute)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastSeen: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastSeen)
		if elapsed > 0 {
			refill := elapsed.Minutes() / rateLimitWindow.Minutes() * capacity
			b.tokens = math.Min(capacity, b.tokens+refill)
		}
		b.lastSeen = now
	}
	l.cleanupLocked(now)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *userRateLimiter) cleanupLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}
