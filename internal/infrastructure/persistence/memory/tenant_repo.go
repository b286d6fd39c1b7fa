package memory

import (
	"context"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// TenantRepository 租户仓储内存实现
type TenantRepository struct {
	s *Store
}

var _ repository.TenantRepository = (*TenantRepository)(nil)

// conflicts 检查域名/子域名唯一性，调用方需持有写锁
func (r *TenantRepository) conflicts(t *entity.Tenant) bool {
	for id, other := range r.s.tenants {
		if id == t.ID {
			continue
		}
		if other.Domain == t.Domain {
			return true
		}
		if t.Subdomain != nil && other.Subdomain != nil && *t.Subdomain == *other.Subdomain {
			return true
		}
	}
	return false
}

// Create 创建租户
func (r *TenantRepository) Create(ctx context.Context, tenant *entity.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.tenants[tenant.ID]; exists || r.conflicts(tenant) {
		return repository.ErrDuplicate
	}
	r.s.tenants[tenant.ID] = tenant.Clone()
	return nil
}

// GetByID 根据 ID 获取租户
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*entity.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.tenants[id].Clone(), nil
}

// GetByDomain 根据域名获取租户
func (r *TenantRepository) GetByDomain(ctx context.Context, domain string) (*entity.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tenants {
		if t.Domain == domain {
			return t.Clone(), nil
		}
	}
	return nil, nil
}

// Update 按列部分更新租户
func (r *TenantRepository) Update(ctx context.Context, tenant *entity.Tenant, columns ...string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.tenants[tenant.ID]
	if !ok {
		return repository.ErrStaleState
	}
	merged := existing.Clone()
	src := tenant.Clone()
	for _, column := range columns {
		switch column {
		case entity.TenantColumnName:
			merged.Name = src.Name
		case entity.TenantColumnDomain:
			merged.Domain = src.Domain
		case entity.TenantColumnSubdomain:
			merged.Subdomain = src.Subdomain
		case entity.TenantColumnPlan:
			merged.Plan = src.Plan
		case entity.TenantColumnFeatures:
			merged.Features = src.Features
		case entity.TenantColumnSettings:
			merged.Settings = src.Settings
		case entity.TenantColumnStatus:
			merged.Status = src.Status
		case entity.TenantColumnSuspendedReason:
			merged.SuspendedReason = src.SuspendedReason
		case entity.TenantColumnSuspendedAt:
			merged.SuspendedAt = src.SuspendedAt
		}
	}
	merged.UpdatedAt = src.UpdatedAt

	if r.conflicts(merged) {
		return repository.ErrDuplicate
	}
	r.s.tenants[tenant.ID] = merged
	return nil
}

// Delete 删除租户
func (r *TenantRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tenants[id]; !ok {
		return false, nil
	}
	delete(r.s.tenants, id)
	return true, nil
}

// List 获取租户列表
func (r *TenantRepository) List(ctx context.Context, filter repository.TenantFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Tenant], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	orgs := make(map[string]struct{}, len(filter.OrganizationIDs))
	for _, id := range filter.OrganizationIDs {
		orgs[id] = struct{}{}
	}

	items := make([]*entity.Tenant, 0)
	for _, t := range r.s.tenants {
		if filter.Restricted || len(orgs) > 0 {
			if _, ok := orgs[t.OrganizationID]; !ok {
				continue
			}
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		items = append(items, t.Clone())
	}
	sortByCreated(items,
		func(t *entity.Tenant) int64 { return t.CreatedAt.UnixNano() },
		func(t *entity.Tenant) string { return t.ID })
	return paginate(items, pagination), nil
}

// IsolationPolicyRepository 隔离策略仓储内存实现
type IsolationPolicyRepository struct {
	s *Store
}

var _ repository.IsolationPolicyRepository = (*IsolationPolicyRepository)(nil)

// Upsert 写入或覆盖隔离策略
func (r *IsolationPolicyRepository) Upsert(ctx context.Context, policy *entity.TenantIsolationPolicy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *policy
	if existing, ok := r.s.policies[policy.TenantID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	r.s.policies[policy.TenantID] = &cp
	return nil
}

// Get 获取隔离策略
func (r *IsolationPolicyRepository) Get(ctx context.Context, tenantID string) (*entity.TenantIsolationPolicy, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.policies[tenantID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Delete 删除隔离策略
func (r *IsolationPolicyRepository) Delete(ctx context.Context, tenantID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.policies, tenantID)
	return nil
}
