// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// UserRepository 用户仓储实现
type UserRepository struct {
	client *Client
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository 创建用户仓储
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{client: client}
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(user).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

// GetByID 根据 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var user entity.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByEmail 根据邮箱获取用户
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.GetByEmail")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var user entity.User
	if err := db.First(&user, "email = ?", entity.NormalizeEmail(email)).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// Update 更新用户资料，密码摘要与最后登录时间由专用方法维护
func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(user).Select("*").Omit("created_at", "password_hash", "last_login_at").Updates(user)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to update user: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return repository.ErrStaleState
	}
	return nil
}

// Delete 删除用户及其成员关系
func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.Delete")
	defer span.End()

	var deleted bool
	err := getDB(ctx, r.client.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&entity.Membership{}, "user_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&entity.User{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return deleted, nil
}

// List 获取用户列表
func (r *UserRepository) List(ctx context.Context, filter repository.UserFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.User], error) {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.List")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.User{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.EmailVerified != nil {
		query = query.Where("email_verified = ?", *filter.EmailVerified)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	var users []*entity.User
	if err := query.Order("created_at ASC").Order("id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&users).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return repository.NewPagedResult(users, total, pagination), nil
}

// UpdateLastLogin 更新最后登录时间
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.UpdateLastLogin")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.User{}).Where("id = ?", id).UpdateColumn("last_login_at", at).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdatePasswordHash 仅更新密码摘要
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.UpdatePasswordHash")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.User{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrStaleState
	}
	return nil
}

// PasswordResetRepository 密码重置令牌仓储实现
type PasswordResetRepository struct {
	client *Client
}

var _ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)

// NewPasswordResetRepository 创建密码重置令牌仓储
func NewPasswordResetRepository(client *Client) *PasswordResetRepository {
	return &PasswordResetRepository{client: client}
}

// Create 保存令牌
func (r *PasswordResetRepository) Create(ctx context.Context, token *entity.PasswordResetToken) error {
	ctx, span := tracer.Start(ctx, "postgres.PasswordResetRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(token).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create reset token: %w", translate(err))
	}
	return nil
}

// Consume 原子地消费令牌：条件更新 used_at，未命中即视为无效
func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*entity.PasswordResetToken, error) {
	ctx, span := tracer.Start(ctx, "postgres.PasswordResetRepository.Consume")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.PasswordResetToken{}).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now).
		Update("used_at", now)
	if result.Error != nil {
		span.RecordError(result.Error)
		return nil, fmt.Errorf("failed to consume reset token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	var token entity.PasswordResetToken
	if err := db.First(&token, "token_hash = ?", tokenHash).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load reset token: %w", err)
	}
	return &token, nil
}
