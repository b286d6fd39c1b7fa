// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"saas-tenancy-api/internal/domain/entity"
)

// UserFilter 用户列表过滤条件
type UserFilter struct {
	Status        entity.UserStatus
	Role          entity.UserRole
	EmailVerified *bool
}

// UserRepository 用户仓储接口
type UserRepository interface {
	// Create 创建用户，邮箱冲突返回 ErrDuplicate
	Create(ctx context.Context, user *entity.User) error

	// GetByID 根据 ID 获取用户
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// GetByEmail 根据邮箱获取用户
	GetByEmail(ctx context.Context, email string) (*entity.User, error)

	// Update 更新用户资料，不修改密码摘要与最后登录时间
	Update(ctx context.Context, user *entity.User) error

	// Delete 删除用户及其成员关系，返回是否存在
	Delete(ctx context.Context, id string) (bool, error)

	// List 获取用户列表
	List(ctx context.Context, filter UserFilter, pagination Pagination) (*PagedResult[*entity.User], error)

	// UpdateLastLogin 更新最后登录时间
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdatePasswordHash 仅更新密码摘要
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// PasswordResetRepository 密码重置令牌仓储接口
type PasswordResetRepository interface {
	// Create 保存令牌
	Create(ctx context.Context, token *entity.PasswordResetToken) error

	// Consume 原子地将有效令牌标记为已使用；无效、过期或已使用时返回 (nil, nil)
	Consume(ctx context.Context, tokenHash string, now time.Time) (*entity.PasswordResetToken, error)
}
