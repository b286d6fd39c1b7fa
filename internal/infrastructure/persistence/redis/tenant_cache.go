package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/metrics"
)

const tenantKeyPrefix = "tenant:resolve:"

// TenantCache 租户解析缓存，键为租户 ID 或域名
type TenantCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewTenantCache 创建租户解析缓存
func NewTenantCache(cache *Cache, ttl time.Duration) *TenantCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TenantCache{cache: cache, ttl: ttl}
}

// tenantKey 以规范化后的标识生成键，同一租户的不同写法落在同一个键上
func tenantKey(identifier string) string {
	return tenantKeyPrefix + CanonicalTenantIdentifier(identifier)
}

// CanonicalTenantIdentifier UUID 统一为小写带连字符形式，域名统一为小写
func CanonicalTenantIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if id, err := uuid.Parse(identifier); err == nil {
		return id.String()
	}
	return strings.ToLower(identifier)
}

// Resolve 从缓存读取，未命中时调用 loader 并回填
// loader 返回错误（包括未找到）时不缓存；Redis 故障时直接回源。
func (c *TenantCache) Resolve(ctx context.Context, identifier string, loader func() (*entity.Tenant, error)) (*entity.Tenant, error) {
	raw, hit, err := c.cache.GetOrLoadSafe(ctx, tenantKey(identifier), c.ttl, func() (interface{}, error) {
		tenant, err := loader()
		if err != nil {
			return nil, loaderError{err: err}
		}
		return tenant, nil
	})
	if err != nil {
		var le loaderError
		if errors.As(err, &le) {
			return nil, le.err
		}
		logger.Warn(ctx, "tenant cache unavailable, falling back to registry", "error", err.Error())
		metrics.TenantResolveTotal.WithLabelValues("cache_error").Inc()
		return loader()
	}

	if hit {
		metrics.TenantResolveTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.TenantResolveTotal.WithLabelValues("miss").Inc()
	}

	var tenant entity.Tenant
	if err := json.Unmarshal(raw, &tenant); err != nil {
		return nil, fmt.Errorf("failed to decode cached tenant: %w", err)
	}
	return &tenant, nil
}

// Invalidate 删除租户的 ID 与域名两个缓存键
func (c *TenantCache) Invalidate(ctx context.Context, tenant *entity.Tenant, previousDomain string) {
	keys := []string{tenantKey(tenant.ID), tenantKey(tenant.Domain)}
	if previousDomain != "" && previousDomain != tenant.Domain {
		keys = append(keys, tenantKey(previousDomain))
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		logger.Warn(ctx, "failed to invalidate tenant cache", "tenant_id", tenant.ID, "error", err.Error())
	}
}

// loaderError 区分回源错误与 Redis 错误
type loaderError struct{ err error }

func (e loaderError) Error() string { return e.err.Error() }
