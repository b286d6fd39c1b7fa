package memory

import (
	"context"
	"time"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// UserRepository 用户仓储内存实现
type UserRepository struct {
	s *Store
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) emailTaken(u *entity.User) bool {
	for id, other := range r.s.users {
		if id != u.ID && other.Email == u.Email {
			return true
		}
	}
	return false
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok || r.emailTaken(user) {
		return repository.ErrDuplicate
	}
	r.s.users[user.ID] = user.Clone()
	return nil
}

// GetByID 根据 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.users[id].Clone(), nil
}

// GetByEmail 根据邮箱获取用户
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = entity.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

// Update 更新用户资料，密码摘要与最后登录时间保持库中值
func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrStaleState
	}
	if r.emailTaken(user) {
		return repository.ErrDuplicate
	}
	updated := user.Clone()
	updated.PasswordHash = existing.PasswordHash
	updated.LastLoginAt = existing.Clone().LastLoginAt
	updated.CreatedAt = existing.CreatedAt
	r.s.users[user.ID] = updated
	return nil
}

// Delete 删除用户及其成员关系
func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return false, nil
	}
	delete(r.s.users, id)
	for key := range r.s.memberships {
		if key.userID == id {
			delete(r.s.memberships, key)
		}
	}
	return true, nil
}

// List 获取用户列表
func (r *UserRepository) List(ctx context.Context, filter repository.UserFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.User], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := make([]*entity.User, 0)
	for _, u := range r.s.users {
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.EmailVerified != nil && u.EmailVerified != *filter.EmailVerified {
			continue
		}
		items = append(items, u.Clone())
	}
	sortByCreated(items,
		func(u *entity.User) int64 { return u.CreatedAt.UnixNano() },
		func(u *entity.User) string { return u.ID })
	return paginate(items, pagination), nil
}

// UpdateLastLogin 更新最后登录时间
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

// UpdatePasswordHash 仅更新密码摘要
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrStaleState
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// PasswordResetRepository 密码重置令牌内存实现
type PasswordResetRepository struct {
	s *Store
}

var _ repository.PasswordResetRepository = (*PasswordResetRepository)(nil)

// Create 保存令牌
func (r *PasswordResetRepository) Create(ctx context.Context, token *entity.PasswordResetToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.resetTokens[token.TokenHash]; ok {
		return repository.ErrDuplicate
	}
	cp := *token
	r.s.resetTokens[token.TokenHash] = &cp
	return nil
}

// Consume 原子地消费令牌
func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*entity.PasswordResetToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.resetTokens[tokenHash]
	if !ok || !t.Usable(now) {
		return nil, nil
	}
	t.UsedAt = &now
	cp := *t
	return &cp, nil
}
