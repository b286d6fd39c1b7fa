// Package memory 提供进程内存储实现，用于开发模式与测试
//
// 所有仓储共享同一把读写锁，写操作在锁内完成唯一性检查与写入，
// 读操作返回深拷贝，保证并发读者看不到部分更新。
package memory

import (
	"context"
	"sort"
	"sync"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// Store 内存存储
type Store struct {
	mu sync.RWMutex

	tenants       map[string]*entity.Tenant
	policies      map[string]*entity.TenantIsolationPolicy
	organizations map[string]*entity.Organization
	memberships   map[membershipKey]*entity.Membership
	users         map[string]*entity.User
	resetTokens   map[string]*entity.PasswordResetToken
	subscriptions map[string]*entity.Subscription
	invoices      map[string]*entity.Invoice
	usage         []*entity.UsageRecord
	audit         []*entity.AuditEvent
}

type membershipKey struct {
	orgID  string
	userID string
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{
		tenants:       make(map[string]*entity.Tenant),
		policies:      make(map[string]*entity.TenantIsolationPolicy),
		organizations: make(map[string]*entity.Organization),
		memberships:   make(map[membershipKey]*entity.Membership),
		users:         make(map[string]*entity.User),
		resetTokens:   make(map[string]*entity.PasswordResetToken),
		subscriptions: make(map[string]*entity.Subscription),
		invoices:      make(map[string]*entity.Invoice),
	}
}

// Tenants 租户仓储
func (s *Store) Tenants() *TenantRepository { return &TenantRepository{s: s} }

// IsolationPolicies 隔离策略仓储
func (s *Store) IsolationPolicies() *IsolationPolicyRepository {
	return &IsolationPolicyRepository{s: s}
}

// Organizations 组织仓储
func (s *Store) Organizations() *OrganizationRepository { return &OrganizationRepository{s: s} }

// Users 用户仓储
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// PasswordResets 密码重置令牌仓储
func (s *Store) PasswordResets() *PasswordResetRepository { return &PasswordResetRepository{s: s} }

// Subscriptions 订阅仓储
func (s *Store) Subscriptions() *SubscriptionRepository { return &SubscriptionRepository{s: s} }

// Invoices 账单仓储
func (s *Store) Invoices() *InvoiceRepository { return &InvoiceRepository{s: s} }

// Usage 用量仓储
func (s *Store) Usage() *UsageRepository { return &UsageRepository{s: s} }

// Audit 审计仓储
func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }

// AuditEvents 返回已写入的审计事件副本
func (s *Store) AuditEvents() []*entity.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.AuditEvent, len(s.audit))
	copy(out, s.audit)
	return out
}

// Transactor 内存事务：串行执行，不提供回滚
type Transactor struct{}

// NewTransactor 创建内存事务管理器
func NewTransactor() *Transactor { return &Transactor{} }

// WithTransaction 直接执行 fn
func (Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// HealthCheck 内存存储始终可用
func (s *Store) HealthCheck(ctx context.Context) error { return nil }

// paginate 对已排序切片分页
func paginate[T any](items []T, p repository.Pagination) *repository.PagedResult[T] {
	total := int64(len(items))
	start := min(max(p.Offset(), 0), len(items))
	end := start + min(max(p.Limit(), 0), len(items)-start)
	page := append([]T(nil), items[start:end]...)
	return repository.NewPagedResult(page, total, p)
}

// sortByCreated 按创建时间、ID 稳定排序
func sortByCreated[T any](items []T, created func(T) int64, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci != cj {
			return ci < cj
		}
		return id(items[i]) < id(items[j])
	})
}
