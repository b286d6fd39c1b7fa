// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"time"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// SubscriptionRepository 订阅仓储实现
type SubscriptionRepository struct {
	client *Client
}

var _ repository.SubscriptionRepository = (*SubscriptionRepository)(nil)

// NewSubscriptionRepository 创建订阅仓储
func NewSubscriptionRepository(client *Client) *SubscriptionRepository {
	return &SubscriptionRepository{client: client}
}

// Create 创建订阅，依赖部分唯一索引保证组织内唯一
func (r *SubscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(sub).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create subscription: %w", translate(err))
	}
	return nil
}

// GetByID 根据 ID 获取订阅
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var sub entity.Subscription
	if err := db.First(&sub, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// GetCurrentByOrganization 获取组织当前订阅
func (r *SubscriptionRepository) GetCurrentByOrganization(ctx context.Context, orgID string) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.GetCurrentByOrganization")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var sub entity.Subscription
	err := db.Where("organization_id = ? AND status <> ?", orgID, entity.SubscriptionStatusCancelled).
		First(&sub).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get current subscription: %w", err)
	}
	return &sub, nil
}

// Update 更新订阅，WHERE 条件排除已取消记录
func (r *SubscriptionRepository) Update(ctx context.Context, sub *entity.Subscription) error {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Subscription{}).
		Where("id = ? AND status <> ?", sub.ID, entity.SubscriptionStatusCancelled).
		Select("*").Omit("id", "created_at").
		Updates(sub)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to update subscription: %w", translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return repository.ErrStaleState
	}
	return nil
}

// ListTrialsEndedBefore 获取试用期已结束的订阅
func (r *SubscriptionRepository) ListTrialsEndedBefore(ctx context.Context, at time.Time, limit int) ([]*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.ListTrialsEndedBefore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var subs []*entity.Subscription
	query := db.Where("trial_ends_at IS NOT NULL AND trial_ends_at <= ? AND status <> ?", at, entity.SubscriptionStatusCancelled).
		Order("trial_ends_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list ended trials: %w", err)
	}
	return subs, nil
}

// ListCurrent 获取全部未取消订阅
func (r *SubscriptionRepository) ListCurrent(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Subscription], error) {
	ctx, span := tracer.Start(ctx, "postgres.SubscriptionRepository.ListCurrent")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.Subscription{}).
		Where("status <> ?", entity.SubscriptionStatusCancelled)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	var subs []*entity.Subscription
	if err := query.Order("created_at ASC").Order("id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&subs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return repository.NewPagedResult(subs, total, pagination), nil
}

// InvoiceRepository 账单仓储实现
type InvoiceRepository struct {
	client *Client
}

var _ repository.InvoiceRepository = (*InvoiceRepository)(nil)

// NewInvoiceRepository 创建账单仓储
func NewInvoiceRepository(client *Client) *InvoiceRepository {
	return &InvoiceRepository{client: client}
}

// Create 创建账单
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	ctx, span := tracer.Start(ctx, "postgres.InvoiceRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(invoice).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create invoice: %w", translate(err))
	}
	return nil
}

// GetByID 根据 ID 获取账单
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	ctx, span := tracer.Start(ctx, "postgres.InvoiceRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var invoice entity.Invoice
	if err := db.First(&invoice, "id = ?", id).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

// Transition 条件更新账单，保证已支付账单不会被覆盖
func (r *InvoiceRepository) Transition(ctx context.Context, invoice *entity.Invoice, from ...entity.InvoiceStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.InvoiceRepository.Transition")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Invoice{}).
		Where("id = ? AND status IN ?", invoice.ID, from).
		Updates(map[string]any{
			"status":           invoice.Status,
			"payment_method":   invoice.PaymentMethod,
			"payment_attempts": invoice.PaymentAttempts,
			"transaction_id":   invoice.TransactionID,
			"failure_reason":   invoice.FailureReason,
			"paid_at":          invoice.PaidAt,
			"updated_at":       invoice.UpdatedAt,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to transition invoice: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrStaleState
	}
	return nil
}

// ListByOrganization 获取组织账单
func (r *InvoiceRepository) ListByOrganization(ctx context.Context, orgID string, filter repository.InvoiceFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Invoice], error) {
	ctx, span := tracer.Start(ctx, "postgres.InvoiceRepository.ListByOrganization")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.Invoice{}).Where("organization_id = ?", orgID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count invoices: %w", err)
	}

	var invoices []*entity.Invoice
	if err := query.Order("created_at ASC").Order("id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&invoices).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return repository.NewPagedResult(invoices, total, pagination), nil
}

// ListAllByOrganization 获取组织全部账单
func (r *InvoiceRepository) ListAllByOrganization(ctx context.Context, orgID string) ([]*entity.Invoice, error) {
	ctx, span := tracer.Start(ctx, "postgres.InvoiceRepository.ListAllByOrganization")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var invoices []*entity.Invoice
	if err := db.Where("organization_id = ?", orgID).Order("created_at ASC").Find(&invoices).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// ListProcessingBefore 获取超时未结束的支付占位
func (r *InvoiceRepository) ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]*entity.Invoice, error) {
	ctx, span := tracer.Start(ctx, "postgres.InvoiceRepository.ListProcessingBefore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var invoices []*entity.Invoice
	query := db.Where("status = ? AND updated_at < ?", entity.InvoiceStatusProcessing, before).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&invoices).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list processing invoices: %w", err)
	}
	return invoices, nil
}

// UsageRepository 用量仓储实现
type UsageRepository struct {
	client *Client
}

var _ repository.UsageRepository = (*UsageRepository)(nil)

// NewUsageRepository 创建用量仓储
func NewUsageRepository(client *Client) *UsageRepository {
	return &UsageRepository{client: client}
}

// Append 追加用量记录
func (r *UsageRepository) Append(ctx context.Context, record *entity.UsageRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.Append")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(record).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	return nil
}

// Aggregate 按指标聚合
func (r *UsageRepository) Aggregate(ctx context.Context, orgID string, from, to time.Time) ([]entity.UsageAggregate, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.Aggregate")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.UsageRecord{}).
		Select("metric, COALESCE(SUM(value), 0) AS total, COUNT(*) AS count").
		Where("organization_id = ?", orgID)
	if !from.IsZero() {
		query = query.Where("recorded_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("recorded_at < ?", to)
	}

	var aggs []entity.UsageAggregate
	if err := query.Group("metric").Order("metric ASC").Scan(&aggs).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return aggs, nil
}
