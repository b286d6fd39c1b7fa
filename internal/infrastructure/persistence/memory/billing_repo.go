package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
)

// SubscriptionRepository 订阅仓储内存实现
type SubscriptionRepository struct {
	s *Store
}

var _ repository.SubscriptionRepository = (*SubscriptionRepository)(nil)

// Create 创建订阅，组织内只允许一个未取消订阅
func (r *SubscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.subscriptions {
		if other.OrganizationID == sub.OrganizationID && !other.IsCancelled() {
			return repository.ErrDuplicate
		}
	}
	r.s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

// GetByID 根据 ID 获取订阅
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*entity.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.subscriptions[id].Clone(), nil
}

// GetCurrentByOrganization 获取组织当前订阅
func (r *SubscriptionRepository) GetCurrentByOrganization(ctx context.Context, orgID string) (*entity.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sub := range r.s.subscriptions {
		if sub.OrganizationID == orgID && !sub.IsCancelled() {
			return sub.Clone(), nil
		}
	}
	return nil, nil
}

// Update 更新订阅，已取消的订阅不可覆盖
func (r *SubscriptionRepository) Update(ctx context.Context, sub *entity.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.subscriptions[sub.ID]
	if !ok || existing.IsCancelled() {
		return repository.ErrStaleState
	}
	r.s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

// ListTrialsEndedBefore 获取试用期已结束的订阅
func (r *SubscriptionRepository) ListTrialsEndedBefore(ctx context.Context, at time.Time, limit int) ([]*entity.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Subscription, 0)
	for _, sub := range r.s.subscriptions {
		if sub.IsCancelled() || sub.TrialEndsAt == nil || sub.TrialEndsAt.After(at) {
			continue
		}
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialEndsAt.Before(*out[j].TrialEndsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListCurrent 获取全部未取消订阅
func (r *SubscriptionRepository) ListCurrent(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Subscription], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]*entity.Subscription, 0)
	for _, sub := range r.s.subscriptions {
		if !sub.IsCancelled() {
			items = append(items, sub.Clone())
		}
	}
	sortByCreated(items,
		func(s *entity.Subscription) int64 { return s.CreatedAt.UnixNano() },
		func(s *entity.Subscription) string { return s.ID })
	return paginate(items, pagination), nil
}

// InvoiceRepository 账单仓储内存实现
type InvoiceRepository struct {
	s *Store
}

var _ repository.InvoiceRepository = (*InvoiceRepository)(nil)

// Create 创建账单
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[invoice.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.invoices[invoice.ID] = invoice.Clone()
	return nil
}

// GetByID 根据 ID 获取账单
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.invoices[id].Clone(), nil
}

// Transition 条件更新账单状态
func (r *InvoiceRepository) Transition(ctx context.Context, invoice *entity.Invoice, from ...entity.InvoiceStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.invoices[invoice.ID]
	if !ok || !slices.Contains(from, existing.Status) {
		return repository.ErrStaleState
	}
	r.s.invoices[invoice.ID] = invoice.Clone()
	return nil
}

func (r *InvoiceRepository) filtered(orgID string, filter repository.InvoiceFilter) []*entity.Invoice {
	items := make([]*entity.Invoice, 0)
	for _, inv := range r.s.invoices {
		if inv.OrganizationID != orgID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.From != nil && inv.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !inv.CreatedAt.Before(*filter.To) {
			continue
		}
		items = append(items, inv.Clone())
	}
	sortByCreated(items,
		func(i *entity.Invoice) int64 { return i.CreatedAt.UnixNano() },
		func(i *entity.Invoice) string { return i.ID })
	return items
}

// ListByOrganization 获取组织账单
func (r *InvoiceRepository) ListByOrganization(ctx context.Context, orgID string, filter repository.InvoiceFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Invoice], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return paginate(r.filtered(orgID, filter), pagination), nil
}

// ListAllByOrganization 获取组织全部账单
func (r *InvoiceRepository) ListAllByOrganization(ctx context.Context, orgID string) ([]*entity.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.filtered(orgID, repository.InvoiceFilter{}), nil
}

// ListProcessingBefore 获取超时未结束的支付占位
func (r *InvoiceRepository) ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]*entity.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*entity.Invoice, 0)
	for _, inv := range r.s.invoices {
		if inv.IsProcessing() && inv.UpdatedAt.Before(before) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UsageRepository 用量仓储内存实现
type UsageRepository struct {
	s *Store
}

var _ repository.UsageRepository = (*UsageRepository)(nil)

// Append 追加用量记录
func (r *UsageRepository) Append(ctx context.Context, record *entity.UsageRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *record
	r.s.usage = append(r.s.usage, &cp)
	return nil
}

// Aggregate 按指标聚合
func (r *UsageRepository) Aggregate(ctx context.Context, orgID string, from, to time.Time) ([]entity.UsageAggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byMetric := make(map[string]*entity.UsageAggregate)
	for _, rec := range r.s.usage {
		if rec.OrganizationID != orgID {
			continue
		}
		if !from.IsZero() && rec.RecordedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.RecordedAt.Before(to) {
			continue
		}
		agg, ok := byMetric[rec.Metric]
		if !ok {
			agg = &entity.UsageAggregate{Metric: rec.Metric}
			byMetric[rec.Metric] = agg
		}
		agg.Total += rec.Value
		agg.Count++
	}

	out := make([]entity.UsageAggregate, 0, len(byMetric))
	for _, agg := range byMetric {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}

// AuditRepository 审计仓储内存实现
type AuditRepository struct {
	s *Store
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

// Append 追加审计事件
func (r *AuditRepository) Append(ctx context.Context, event *entity.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *event
	r.s.audit = append(r.s.audit, &cp)
	return nil
}
