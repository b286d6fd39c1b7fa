// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"saas-tenancy-api/internal/domain/entity"
)

// TenantFilter 租户列表过滤条件
type TenantFilter struct {
	// OrganizationIDs 为空表示不限组织（仅管理员使用）
	OrganizationIDs []string
	Status          entity.TenantStatus
	// Restricted 为 true 时即使 OrganizationIDs 为空也只返回空结果
	Restricted bool
}

// TenantRepository 租户仓储接口
//
// 查询未命中时返回 (nil, nil)；唯一约束冲突返回 ErrDuplicate。
type TenantRepository interface {
	// Create 创建租户
	Create(ctx context.Context, tenant *entity.Tenant) error

	// GetByID 根据 ID 获取租户
	GetByID(ctx context.Context, id string) (*entity.Tenant, error)

	// GetByDomain 根据域名获取租户
	GetByDomain(ctx context.Context, domain string) (*entity.Tenant, error)

	// Update 只写入 columns 列出的列与 updated_at，其余列保持库中值；租户不存在时返回 ErrStaleState
	Update(ctx context.Context, tenant *entity.Tenant, columns ...string) error

	// Delete 删除租户，返回是否存在
	Delete(ctx context.Context, id string) (bool, error)

	// List 获取租户列表
	List(ctx context.Context, filter TenantFilter, pagination Pagination) (*PagedResult[*entity.Tenant], error)
}

// IsolationPolicyRepository 租户隔离策略仓储接口
type IsolationPolicyRepository interface {
	// Upsert 写入或覆盖隔离策略
	Upsert(ctx context.Context, policy *entity.TenantIsolationPolicy) error

	// Get 获取隔离策略
	Get(ctx context.Context, tenantID string) (*entity.TenantIsolationPolicy, error)

	// Delete 删除隔离策略，不存在时为空操作
	Delete(ctx context.Context, tenantID string) error
}
