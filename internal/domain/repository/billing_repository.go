// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"saas-tenancy-api/internal/domain/entity"
)

// SubscriptionRepository 订阅仓储接口
type SubscriptionRepository interface {
	// Create 创建订阅，组织已有未取消订阅时返回 ErrDuplicate
	Create(ctx context.Context, sub *entity.Subscription) error

	// GetByID 根据 ID 获取订阅
	GetByID(ctx context.Context, id string) (*entity.Subscription, error)

	// GetCurrentByOrganization 获取组织当前（未取消）订阅
	GetCurrentByOrganization(ctx context.Context, orgID string) (*entity.Subscription, error)

	// Update 更新订阅；库中已取消的订阅不会被覆盖，此时返回 ErrStaleState
	Update(ctx context.Context, sub *entity.Subscription) error

	// ListTrialsEndedBefore 获取试用期已结束但尚未处理的订阅
	ListTrialsEndedBefore(ctx context.Context, at time.Time, limit int) ([]*entity.Subscription, error)

	// ListCurrent 获取全部未取消订阅
	ListCurrent(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Subscription], error)
}

// InvoiceFilter 账单过滤条件
type InvoiceFilter struct {
	Status entity.InvoiceStatus
	From   *time.Time
	To     *time.Time
}

// InvoiceRepository 账单仓储接口
type InvoiceRepository interface {
	// Create 创建账单
	Create(ctx context.Context, invoice *entity.Invoice) error

	// GetByID 根据 ID 获取账单
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)

	// Transition 条件更新账单：仅当库中状态属于 from 时写入，否则返回 ErrStaleState
	Transition(ctx context.Context, invoice *entity.Invoice, from ...entity.InvoiceStatus) error

	// ListByOrganization 获取组织账单
	ListByOrganization(ctx context.Context, orgID string, filter InvoiceFilter, pagination Pagination) (*PagedResult[*entity.Invoice], error)

	// ListAllByOrganization 获取组织账单（不分页，用于汇总）
	ListAllByOrganization(ctx context.Context, orgID string) ([]*entity.Invoice, error)

	// ListProcessingBefore 获取 updated_at 早于 before 的 processing 账单
	ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]*entity.Invoice, error)
}

// UsageRepository 用量仓储接口，只追加
type UsageRepository interface {
	// Append 追加用量记录
	Append(ctx context.Context, record *entity.UsageRecord) error

	// Aggregate 按指标聚合 [from, to) 区间内的用量，from/to 为零值时不限
	Aggregate(ctx context.Context, orgID string, from, to time.Time) ([]entity.UsageAggregate, error)
}
