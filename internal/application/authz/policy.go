package authz

import (
	"context"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
)

// Policy 授权策略，所有服务在变更前通过它完成角色与成员关系检查
// 角色以存储中的用户为准，令牌中的角色仅用于路由层快速拒绝。
type Policy struct {
	users repository.UserRepository
	orgs  repository.OrganizationRepository
}

// NewPolicy 创建授权策略
func NewPolicy(users repository.UserRepository, orgs repository.OrganizationRepository) *Policy {
	return &Policy{users: users, orgs: orgs}
}

// CurrentUser 加载当前调用方，未认证或账号不可用时返回 Unauthorized
func (p *Policy) CurrentUser(ctx context.Context) (*entity.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, errors.New(errors.CodeUnauthorized, "authentication required")
	}

	user, err := p.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, errors.Database(err, "failed to load current user")
	}
	if user == nil || !user.IsActive() {
		return nil, errors.New(errors.CodeUnauthorized, "account is not available")
	}
	return user, nil
}

// RequireRole 要求调用方具备给定全局角色之一
func (p *Policy) RequireRole(ctx context.Context, roles ...entity.UserRole) (*entity.User, error) {
	user, err := p.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if user.Role == role {
			return user, nil
		}
	}
	return nil, errors.New(errors.CodePermissionDenied, "insufficient role")
}

// membership 返回用户在组织中的成员关系
func (p *Policy) membership(ctx context.Context, orgID, userID string) (*entity.Membership, error) {
	m, err := p.orgs.GetMembership(ctx, orgID, userID)
	if err != nil {
		return nil, errors.Database(err, "failed to load membership")
	}
	return m, nil
}

// IsOrganizationMember 全局管理员或组织成员
func (p *Policy) IsOrganizationMember(ctx context.Context, user *entity.User, orgID string) (bool, error) {
	if user == nil || !user.IsActive() {
		return false, nil
	}
	if user.IsAdmin() {
		return true, nil
	}
	m, err := p.membership(ctx, orgID, user.ID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// CanManageOrganization 全局管理员或组织 owner/admin
func (p *Policy) CanManageOrganization(ctx context.Context, user *entity.User, orgID string) (bool, error) {
	if user == nil || !user.IsActive() {
		return false, nil
	}
	if user.IsAdmin() {
		return true, nil
	}
	m, err := p.membership(ctx, orgID, user.ID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Role.CanManage(), nil
}

// RequireOrganizationMember 要求调用方属于组织
func (p *Policy) RequireOrganizationMember(ctx context.Context, orgID string) (*entity.User, error) {
	user, err := p.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := p.IsOrganizationMember(ctx, user, orgID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Forbidden("access to organization denied")
	}
	return user, nil
}

// RequireOrganizationManager 要求调用方可管理组织
func (p *Policy) RequireOrganizationManager(ctx context.Context, orgID string) (*entity.User, error) {
	user, err := p.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := p.CanManageOrganization(ctx, user, orgID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Forbidden("organization admin role required")
	}
	return user, nil
}

// CanAccessTenant 用户为全局管理员或租户所属组织成员时返回 true
func (p *Policy) CanAccessTenant(ctx context.Context, tenant *entity.Tenant, userID string) (bool, error) {
	if tenant == nil || userID == "" {
		return false, nil
	}
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		return false, errors.Database(err, "failed to load user")
	}
	return p.IsOrganizationMember(ctx, user, tenant.OrganizationID)
}
