// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// TenantRepository 租户仓储实现
type TenantRepository struct {
	client *Client
}

var _ repository.TenantRepository = (*TenantRepository)(nil)

// NewTenantRepository 创建租户仓储
func NewTenantRepository(client *Client) *TenantRepository {
	return &TenantRepository{client: client}
}

// Create 创建租户
func (r *TenantRepository) Create(ctx context.Context, tenant *entity.Tenant) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(tenant).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create tenant: %w", translate(err))
	}
	return nil
}

// GetByID 根据 ID 获取租户
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var tenant entity.Tenant
	if err := db.First(&tenant, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}

// GetByDomain 根据域名获取租户
func (r *TenantRepository) GetByDomain(ctx context.Context, domain string) (*entity.Tenant, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.GetByDomain")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var tenant entity.Tenant
	if err := db.First(&tenant, "domain = ?", domain).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get tenant by domain: %w", err)
	}
	return &tenant, nil
}

// Update 按列部分更新租户
func (r *TenantRepository) Update(ctx context.Context, tenant *entity.Tenant, columns ...string) error {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.Update")
	defer span.End()

	selected := append(append(make([]string, 0, len(columns)+1), columns...), "updated_at")
	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Tenant{}).
		Where("id = ?", tenant.ID).
		Select(selected).
		Updates(tenant)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to update tenant: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return repository.ErrStaleState
	}
	return nil
}

// Delete 删除租户
func (r *TenantRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Delete(&entity.Tenant{}, "id = ?", id)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to delete tenant: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// List 获取租户列表
func (r *TenantRepository) List(ctx context.Context, filter repository.TenantFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Tenant], error) {
	ctx, span := tracer.Start(ctx, "postgres.TenantRepository.List")
	defer span.End()

	if filter.Restricted && len(filter.OrganizationIDs) == 0 {
		return repository.NewPagedResult([]*entity.Tenant{}, 0, pagination), nil
	}

	query := getDB(ctx, r.client.db).Model(&entity.Tenant{})
	if len(filter.OrganizationIDs) > 0 {
		query = query.Where("organization_id IN ?", filter.OrganizationIDs)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	// 获取总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count tenants: %w", err)
	}

	// 获取列表
	var tenants []*entity.Tenant
	if err := query.Order("created_at ASC").Order("id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&tenants).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	return repository.NewPagedResult(tenants, total, pagination), nil
}

// IsolationPolicyRepository 隔离策略仓储实现
type IsolationPolicyRepository struct {
	client *Client
}

var _ repository.IsolationPolicyRepository = (*IsolationPolicyRepository)(nil)

// NewIsolationPolicyRepository 创建隔离策略仓储
func NewIsolationPolicyRepository(client *Client) *IsolationPolicyRepository {
	return &IsolationPolicyRepository{client: client}
}

// Upsert 写入或覆盖隔离策略
func (r *IsolationPolicyRepository) Upsert(ctx context.Context, policy *entity.TenantIsolationPolicy) error {
	ctx, span := tracer.Start(ctx, "postgres.IsolationPolicyRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encryption_required", "retention_period_days", "data_residency", "storage_prefix", "updated_at",
		}),
	}).Create(policy).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert isolation policy: %w", err)
	}
	return nil
}

// Get 获取隔离策略
func (r *IsolationPolicyRepository) Get(ctx context.Context, tenantID string) (*entity.TenantIsolationPolicy, error) {
	ctx, span := tracer.Start(ctx, "postgres.IsolationPolicyRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var policy entity.TenantIsolationPolicy
	if err := db.First(&policy, "tenant_id = ?", tenantID).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get isolation policy: %w", err)
	}
	return &policy, nil
}

// Delete 删除隔离策略
func (r *IsolationPolicyRepository) Delete(ctx context.Context, tenantID string) error {
	ctx, span := tracer.Start(ctx, "postgres.IsolationPolicyRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.TenantIsolationPolicy{}, "tenant_id = ?", tenantID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete isolation policy: %w", err)
	}
	return nil
}
