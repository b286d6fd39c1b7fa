// Package redis 提供 Redis 限流器实现
package redis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// RateLimitResult 限流判定结果
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// RateLimiter 固定窗口限流器，多实例共享计数
type RateLimiter struct {
	client *Client
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow 对 key 计数一次并判定是否超过窗口内上限
// 窗口从该 key 第一次请求开始计时，到期后计数自动清零。
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	pipe := l.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	count := incr.Val()
	resetAfter := ttl.Val()
	if resetAfter < 0 {
		resetAfter = window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	allowed := count <= int64(limit)
	span.SetAttributes(
		attribute.Int64("ratelimit.current_count", count),
		attribute.Bool("ratelimit.allowed", allowed),
	)

	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}

// BuildRateLimitKey 构建限流键
func BuildRateLimitKey(scope, identifier string) string {
	return "ratelimit:" + scope + ":" + identifier
}
