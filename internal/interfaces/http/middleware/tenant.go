// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
)

// TenantResolver 按租户 ID 或域名解析租户
type TenantResolver interface {
	ResolveTenant(ctx context.Context, identifier string) (*entity.Tenant, error)
}

// TenantConfig 租户中间件配置
type TenantConfig struct {
	// HeaderName 从 Header 中获取租户标识的字段名
	HeaderName string
	// QueryParam 从查询参数获取租户标识的字段名
	QueryParam string
}

// Tenant 请求上下文租户解析中间件
// 未携带租户标识的请求不带租户上下文继续处理；标识无法解析时立即终止。
// 租户身份只在这里进入请求上下文。
func Tenant(cfg TenantConfig, resolver TenantResolver) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-Tenant-ID"
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = "tenantId"
	}

	return func(c *gin.Context) {
		identifier := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if identifier == "" {
			identifier = strings.TrimSpace(c.Query(cfg.QueryParam))
		}
		if identifier == "" {
			c.Next()
			return
		}

		tenant, err := resolver.ResolveTenant(c.Request.Context(), identifier)
		if err != nil {
			dto.Abort(c, err)
			return
		}

		ctx := authz.WithTenant(c.Request.Context(), tenant)
		ctx = logger.WithContext(ctx, logger.TenantIDKey, tenant.ID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// ActiveTenant 拒绝在已暂停租户上下文中的写请求
func ActiveTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := authz.TenantFromContext(c.Request.Context())
		if tenant != nil && tenant.IsSuspended() && isMutating(c.Request.Method) {
			dto.Abort(c, errors.New(errors.CodeTenantSuspended, "tenant is suspended"))
			return
		}
		c.Next()
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
