// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"saas-tenancy-api/pkg/logger"
)

// AccessLogConfig 访问日志配置
type AccessLogConfig struct {
	// SkipPaths 不记录的路径前缀
	SkipPaths []string
}

// AccessLog 请求访问日志中间件
func AccessLog(cfg AccessLogConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, prefix := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		start := time.Now()

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"body_size", c.Writer.Size(),
		}
		if c.Writer.Status() >= 500 {
			logger.Warn(c.Request.Context(), "api request", fields...)
			return
		}
		logger.Info(c.Request.Context(), "api request", fields...)
	}
}

// DefaultSkipPaths 默认跳过访问日志与限流的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
