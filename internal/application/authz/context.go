// Package authz 集中处理请求身份与授权判定
package authz

import (
	"context"

	"saas-tenancy-api/internal/domain/entity"
)

type actorKey struct{}

type tenantKey struct{}

// Actor 已认证的调用方，来自访问令牌
type Actor struct {
	UserID string
	Email  string
	Role   entity.UserRole
}

// WithActor 将调用方写入 context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext 读取调用方
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.UserID != ""
}

// ActorID 返回调用方用户 ID，未认证时为空串
func ActorID(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.UserID
}

// WithTenant 写入请求上下文中已解析的租户
// 租户身份只能由租户上下文中间件通过该函数注入。
func WithTenant(ctx context.Context, tenant *entity.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext 读取已解析的租户，不存在时返回 nil
func TenantFromContext(ctx context.Context) *entity.Tenant {
	tenant, _ := ctx.Value(tenantKey{}).(*entity.Tenant)
	return tenant
}

// TenantID 返回已解析租户 ID，不存在时为空串
func TenantID(ctx context.Context) string {
	if tenant := TenantFromContext(ctx); tenant != nil {
		return tenant.ID
	}
	return ""
}
