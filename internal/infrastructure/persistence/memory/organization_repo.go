package memory

import (
	"context"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// OrganizationRepository 组织仓储内存实现
type OrganizationRepository struct {
	s *Store
}

var _ repository.OrganizationRepository = (*OrganizationRepository)(nil)

// Create 创建组织
func (r *OrganizationRepository) Create(ctx context.Context, org *entity.Organization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.organizations[org.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *org
	r.s.organizations[org.ID] = &cp
	return nil
}

// GetByID 根据 ID 获取组织
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*entity.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	org, ok := r.s.organizations[id]
	if !ok {
		return nil, nil
	}
	cp := *org
	return &cp, nil
}

// ListByUser 获取用户所属组织
func (r *OrganizationRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*entity.Organization, 0)
	for key := range r.s.memberships {
		if key.userID != userID {
			continue
		}
		if org, ok := r.s.organizations[key.orgID]; ok {
			cp := *org
			out = append(out, &cp)
		}
	}
	sortByCreated(out,
		func(o *entity.Organization) int64 { return o.CreatedAt.UnixNano() },
		func(o *entity.Organization) string { return o.ID })
	return out, nil
}

// AddMember 添加成员
func (r *OrganizationRepository) AddMember(ctx context.Context, m *entity.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := membershipKey{orgID: m.OrganizationID, userID: m.UserID}
	if _, ok := r.s.memberships[key]; ok {
		return repository.ErrDuplicate
	}
	cp := *m
	r.s.memberships[key] = &cp
	return nil
}

// RemoveMember 移除成员
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := membershipKey{orgID: orgID, userID: userID}
	if _, ok := r.s.memberships[key]; !ok {
		return false, nil
	}
	delete(r.s.memberships, key)
	return true, nil
}

// GetMembership 获取成员关系
func (r *OrganizationRepository) GetMembership(ctx context.Context, orgID, userID string) (*entity.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.memberships[membershipKey{orgID: orgID, userID: userID}]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// ListMembers 获取组织成员
func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID string) ([]*entity.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Membership, 0)
	for key, m := range r.s.memberships {
		if key.orgID == orgID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByCreated(out,
		func(m *entity.Membership) int64 { return m.CreatedAt.UnixNano() },
		func(m *entity.Membership) string { return m.UserID })
	return out, nil
}

// ListOrganizationIDsByUser 获取用户所属组织 ID
func (r *OrganizationRepository) ListOrganizationIDsByUser(ctx context.Context, userID string) ([]string, error) {
	orgs, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(orgs))
	for _, o := range orgs {
		ids = append(ids, o.ID)
	}
	return ids, nil
}
