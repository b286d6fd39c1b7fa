// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"saas-tenancy-api/internal/domain/entity"
)

// OrganizationRepository 组织与成员关系仓储接口
type OrganizationRepository interface {
	// Create 创建组织
	Create(ctx context.Context, org *entity.Organization) error

	// GetByID 根据 ID 获取组织
	GetByID(ctx context.Context, id string) (*entity.Organization, error)

	// ListByUser 获取用户所属的全部组织
	ListByUser(ctx context.Context, userID string) ([]*entity.Organization, error)

	// AddMember 添加成员，已存在返回 ErrDuplicate
	AddMember(ctx context.Context, membership *entity.Membership) error

	// RemoveMember 移除成员，返回是否存在
	RemoveMember(ctx context.Context, orgID, userID string) (bool, error)

	// GetMembership 获取成员关系
	GetMembership(ctx context.Context, orgID, userID string) (*entity.Membership, error)

	// ListMembers 获取组织成员
	ListMembers(ctx context.Context, orgID string) ([]*entity.Membership, error)

	// ListOrganizationIDsByUser 获取用户所属组织 ID
	ListOrganizationIDsByUser(ctx context.Context, userID string) ([]string, error)
}
