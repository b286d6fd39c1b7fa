package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
)

// BillingSummary 组织计费概览
type BillingSummary struct {
	OrganizationID   string
	Subscription     *entity.Subscription
	Plan             *entity.Plan
	Currency         string
	InvoiceCounts    map[entity.InvoiceStatus]int
	TotalPaid        decimal.Decimal
	TotalOutstanding decimal.Decimal
	LastPaymentAt    *time.Time
	Usage            *UsageStats
	LatestRollup     *entity.UsageSnapshot
}

// GetBillingSummary 汇总当前订阅、账单与当前周期用量
func (s *Service) GetBillingSummary(ctx context.Context, orgID string) (*BillingSummary, error) {
	ctx, span := tracer.Start(ctx, "billing.GetBillingSummary")
	defer span.End()

	if err := s.requireOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, orgID, false); err != nil {
		return nil, err
	}

	sub, err := s.subs.GetCurrentByOrganization(ctx, orgID)
	if err != nil {
		return nil, errors.Database(err, "failed to get subscription")
	}
	invoices, err := s.invoices.ListAllByOrganization(ctx, orgID)
	if err != nil {
		return nil, errors.Database(err, "failed to list invoices")
	}

	summary := &BillingSummary{
		OrganizationID: orgID,
		Subscription:   sub,
		Currency:       s.cfg.DefaultCurrency,
		InvoiceCounts: map[entity.InvoiceStatus]int{
			entity.InvoiceStatusPending:    0,
			entity.InvoiceStatusProcessing: 0,
			entity.InvoiceStatusPaid:       0,
			entity.InvoiceStatusFailed:     0,
		},
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
	}
	if sub != nil {
		summary.Currency = sub.Currency
		if plan, ok := entity.LookupPlan(sub.Plan); ok {
			summary.Plan = &plan
		}
	}

	for _, inv := range invoices {
		summary.InvoiceCounts[inv.Status]++
		if inv.IsPaid() {
			summary.TotalPaid = summary.TotalPaid.Add(inv.Total)
			if inv.PaidAt != nil && (summary.LastPaymentAt == nil || inv.PaidAt.After(*summary.LastPaymentAt)) {
				at := *inv.PaidAt
				summary.LastPaymentAt = &at
			}
			continue
		}
		summary.TotalOutstanding = summary.TotalOutstanding.Add(inv.Total)
	}

	summary.Usage, err = s.usageStats(ctx, orgID, sub, UsageQuery{Period: PeriodCurrent}, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.snapshots != nil {
		snapshot, err := s.snapshots.Latest(ctx, orgID)
		if err != nil {
			logger.Warn(ctx, "failed to load usage snapshot", "organization_id", orgID, "error", err.Error())
		}
		summary.LatestRollup = snapshot
	}
	return summary, nil
}
