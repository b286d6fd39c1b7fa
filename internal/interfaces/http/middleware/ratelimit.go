// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	redisstore "saas-tenancy-api/internal/infrastructure/persistence/redis"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/metrics"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// Requests 窗口内允许的请求数
	Requests int
	// Window 窗口长度
	Window time.Duration
	// SkipPaths 不限流的路径前缀
	SkipPaths []string
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*redisstore.RateLimitResult, error)
}

// RateLimit 按客户端 IP 的限流中间件
// 限流器故障时放行，避免影响业务。
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	if cfg.Requests <= 0 {
		cfg.Requests = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}

	return func(c *gin.Context) {
		for _, prefix := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		key := redisstore.BuildRateLimitKey("ip", c.ClientIP())
		result, err := limiter.Allow(c.Request.Context(), key, cfg.Requests, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(math.Ceil(result.ResetAfter.Seconds())), 10))

		if !result.Allowed {
			metrics.RateLimitRejected.Inc()
			c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(result.ResetAfter.Seconds())), 10))
			dto.Abort(c, errors.New(errors.CodeTooManyRequests, "too many requests, please try again later"))
			return
		}

		c.Next()
	}
}

// LocalRateLimiter 进程内令牌桶限流器，Redis 不可用时使用
// 令牌以 limit/window 的速率恢复，桶容量为 limit。
type LocalRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	maxKeys  int
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		limiters: make(map[string]*localEntry),
		maxKeys:  10000,
	}
}

// Allow 消耗一个令牌并返回判定结果
func (l *LocalRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*redisstore.RateLimitResult, error) {
	now := time.Now()

	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.maxKeys {
			l.evict(now.Add(-window))
		}
		entry = &localEntry{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	reservation := entry.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	allowed := delay == 0
	if !allowed {
		reservation.CancelAt(now)
	}

	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	resetAfter := delay
	if allowed {
		resetAfter = window / time.Duration(limit)
	}

	return &redisstore.RateLimitResult{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}

// evict 清理长时间未访问的 key，调用方需持有锁
func (l *LocalRateLimiter) evict(before time.Time) {
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(before) {
			delete(l.limiters, key)
		}
	}
}
