package directory

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/validate"
)

// CreateOrganizationInput 创建组织参数
type CreateOrganizationInput struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

// AddMemberInput 添加成员参数
type AddMemberInput struct {
	UserID string                `json:"userId" validate:"required,uuid"`
	Role   entity.MembershipRole `json:"role" validate:"omitempty,oneof=owner admin member"`
}

// lookupOrganization 读取组织，不存在时返回 OrganizationNotFound
func (s *Service) lookupOrganization(ctx context.Context, id string) (*entity.Organization, error) {
	org, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Database(err, "failed to get organization")
	}
	if org == nil {
		return nil, organizationNotFound()
	}
	return org, nil
}

// CreateOrganization 创建组织，创建者成为 owner
func (s *Service) CreateOrganization(ctx context.Context, in CreateOrganizationInput) (*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "directory.CreateOrganization")
	defer span.End()

	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	org := entity.NewOrganization(in.Name, actor.ID)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.orgs.Create(ctx, org); err != nil {
			return errors.Database(err, "failed to create organization")
		}
		owner := &entity.Membership{
			OrganizationID: org.ID,
			UserID:         actor.ID,
			Role:           entity.MembershipRoleOwner,
			CreatedAt:      org.CreatedAt,
		}
		if err := s.orgs.AddMember(ctx, owner); err != nil {
			return errors.Database(err, "failed to add organization owner")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit.Log(ctx, entity.AuditOrgCreated, "", map[string]any{"organizationId": org.ID, "name": org.Name})
	return org, nil
}

// GetOrganization 获取组织，需要成员身份
func (s *Service) GetOrganization(ctx context.Context, id string) (*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "directory.GetOrganization")
	defer span.End()

	org, err := s.lookupOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.RequireOrganizationMember(ctx, org.ID); err != nil {
		return nil, err
	}
	return org, nil
}

// ListMembers 获取组织成员
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]*entity.Membership, error) {
	ctx, span := tracer.Start(ctx, "directory.ListMembers")
	defer span.End()

	if _, err := s.lookupOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if _, err := s.policy.RequireOrganizationMember(ctx, orgID); err != nil {
		return nil, err
	}
	members, err := s.orgs.ListMembers(ctx, orgID)
	if err != nil {
		return nil, errors.Database(err, "failed to list members")
	}
	return members, nil
}

// AddUserToOrganization 添加成员，需要组织管理权限；只有 owner 或全局管理员可授予 owner
func (s *Service) AddUserToOrganization(ctx context.Context, orgID string, in AddMemberInput) (*entity.Membership, error) {
	ctx, span := tracer.Start(ctx, "directory.AddUserToOrganization")
	defer span.End()

	if in.Role == "" {
		in.Role = entity.MembershipRoleMember
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	if _, err := s.lookupOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if _, err := s.lookupUser(ctx, in.UserID); err != nil {
		return nil, err
	}
	actor, err := s.policy.RequireOrganizationManager(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if in.Role == entity.MembershipRoleOwner && !actor.IsAdmin() {
		own, err := s.orgs.GetMembership(ctx, orgID, actor.ID)
		if err != nil {
			return nil, errors.Database(err, "failed to get membership")
		}
		if own == nil || own.Role != entity.MembershipRoleOwner {
			return nil, errors.Forbidden("only owners can grant ownership")
		}
	}

	membership := &entity.Membership{
		OrganizationID: orgID,
		UserID:         in.UserID,
		Role:           in.Role,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.orgs.AddMember(ctx, membership); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.Conflict("user is already a member of this organization")
		}
		span.RecordError(err)
		return nil, errors.Database(err, "failed to add member")
	}

	s.audit.Log(ctx, entity.AuditOrgMemberAdded, "", map[string]any{
		"organizationId": orgID,
		"userId":         in.UserID,
		"role":           string(in.Role),
	})
	return membership, nil
}

// RemoveUserFromOrganization 移除成员，组织至少保留一个 owner
func (s *Service) RemoveUserFromOrganization(ctx context.Context, orgID, userID string) error {
	ctx, span := tracer.Start(ctx, "directory.RemoveUserFromOrganization")
	defer span.End()

	if _, err := s.lookupOrganization(ctx, orgID); err != nil {
		return err
	}
	if _, err := s.policy.RequireOrganizationManager(ctx, orgID); err != nil {
		return err
	}

	membership, err := s.orgs.GetMembership(ctx, orgID, userID)
	if err != nil {
		return errors.Database(err, "failed to get membership")
	}
	if membership == nil {
		return errors.New(errors.CodeNotFound, "membership not found")
	}
	if membership.Role == entity.MembershipRoleOwner {
		members, err := s.orgs.ListMembers(ctx, orgID)
		if err != nil {
			return errors.Database(err, "failed to list members")
		}
		if countOwners(members) <= 1 {
			return errors.Conflict("cannot remove the last owner of an organization")
		}
	}

	removed, err := s.orgs.RemoveMember(ctx, orgID, userID)
	if err != nil {
		span.RecordError(err)
		return errors.Database(err, "failed to remove member")
	}
	if !removed {
		return errors.New(errors.CodeNotFound, "membership not found")
	}

	s.audit.Log(ctx, entity.AuditOrgMemberRemoved, "", map[string]any{"organizationId": orgID, "userId": userID})
	return nil
}

func countOwners(members []*entity.Membership) int {
	n := 0
	for _, m := range members {
		if m.Role == entity.MembershipRoleOwner {
			n++
		}
	}
	return n
}

// GetUserOrganizations 获取用户所属组织，本人或管理员可见
func (s *Service) GetUserOrganizations(ctx context.Context, userID string) ([]*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "directory.GetUserOrganizations")
	defer span.End()

	if _, err := s.lookupUser(ctx, userID); err != nil {
		return nil, err
	}
	actor, err := s.policy.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if actor.ID != userID && !actor.IsAdmin() {
		return nil, errors.Forbidden("access to user organizations denied")
	}

	orgs, err := s.orgs.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Database(err, "failed to list organizations")
	}
	return orgs, nil
}

// EnsureOrganization 初始化组织并设置 owner，供启动引导使用
func (s *Service) EnsureOrganization(ctx context.Context, id, name string, owner *entity.User) (*entity.Organization, bool, error) {
	existing, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, false, errors.Database(err, "failed to get organization")
	}
	if existing != nil {
		return existing, false, nil
	}

	org := entity.NewOrganization(name, owner.ID)
	org.ID = id
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.orgs.Create(ctx, org); err != nil {
			return errors.Database(err, "failed to create organization")
		}
		return s.orgs.AddMember(ctx, &entity.Membership{
			OrganizationID: org.ID,
			UserID:         owner.ID,
			Role:           entity.MembershipRoleOwner,
			CreatedAt:      org.CreatedAt,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return org, true, nil
}
