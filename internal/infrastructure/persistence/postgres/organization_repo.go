// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// OrganizationRepository 组织仓储实现
type OrganizationRepository struct {
	client *Client
}

var _ repository.OrganizationRepository = (*OrganizationRepository)(nil)

// NewOrganizationRepository 创建组织仓储
func NewOrganizationRepository(client *Client) *OrganizationRepository {
	return &OrganizationRepository{client: client}
}

// Create 创建组织
func (r *OrganizationRepository) Create(ctx context.Context, org *entity.Organization) error {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(org).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create organization: %w", translate(err))
	}
	return nil
}

// GetByID 根据 ID 获取组织
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var org entity.Organization
	if err := db.First(&org, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// ListByUser 获取用户所属组织
func (r *OrganizationRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Organization, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var orgs []*entity.Organization
	err := db.Joins("JOIN organization_members m ON m.organization_id = organizations.id").
		Where("m.user_id = ?", userID).
		Order("organizations.created_at ASC").
		Find(&orgs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list organizations by user: %w", err)
	}
	return orgs, nil
}

// AddMember 添加成员
func (r *OrganizationRepository) AddMember(ctx context.Context, membership *entity.Membership) error {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.AddMember")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(membership).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to add member: %w", translate(err))
	}
	return nil
}

// RemoveMember 移除成员
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.RemoveMember")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Delete(&entity.Membership{}, "organization_id = ? AND user_id = ?", orgID, userID)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to remove member: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetMembership 获取成员关系
func (r *OrganizationRepository) GetMembership(ctx context.Context, orgID, userID string) (*entity.Membership, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.GetMembership")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var m entity.Membership
	if err := db.First(&m, "organization_id = ? AND user_id = ?", orgID, userID).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// ListMembers 获取组织成员
func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID string) ([]*entity.Membership, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.ListMembers")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var members []*entity.Membership
	if err := db.Where("organization_id = ?", orgID).Order("created_at ASC").Find(&members).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ListOrganizationIDsByUser 获取用户所属组织 ID
func (r *OrganizationRepository) ListOrganizationIDsByUser(ctx context.Context, userID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.OrganizationRepository.ListOrganizationIDsByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var ids []string
	if err := db.Model(&entity.Membership{}).Where("user_id = ?", userID).Pluck("organization_id", &ids).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list organization ids: %w", err)
	}
	return ids, nil
}
