package billing

import (
	"context"
	"time"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
)

const (
	trialSweepBatch = 100
	rollupPageSize  = 100
)

// SweepTrials 处理试用期已结束的订阅：清除试用标记并生成首张账单
func (s *Service) SweepTrials(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "billing.SweepTrials")
	defer span.End()

	subs, err := s.subs.ListTrialsEndedBefore(ctx, now, trialSweepBatch)
	if err != nil {
		return 0, errors.Database(err, "failed to list ended trials")
	}

	processed := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		var invoice *entity.Invoice
		err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
			sub.TrialEndsAt = nil
			sub.UpdatedAt = now
			if err := s.subs.Update(ctx, sub); err != nil {
				return err
			}
			var err error
			invoice, err = s.issueInvoice(ctx, sub, now)
			return err
		})
		if err != nil {
			logger.Error(ctx, "failed to end trial", err, "subscription_id", sub.ID)
			continue
		}

		processed++
		s.audit.Log(ctx, entity.AuditSubTrialEnded, "", map[string]any{
			"subscriptionId": sub.ID,
			"organizationId": sub.OrganizationID,
			"invoiceId":      invoice.ID,
		})
	}
	return processed, nil
}

// RollupUsage 计算每个有效订阅当前周期的用量并写入快照存储
func (s *Service) RollupUsage(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "billing.RollupUsage")
	defer span.End()

	if s.snapshots == nil {
		return 0, nil
	}

	written := 0
	for page := 1; ; page++ {
		result, err := s.subs.ListCurrent(ctx, repository.NewPagination(page, rollupPageSize))
		if err != nil {
			return written, errors.Database(err, "failed to list subscriptions")
		}

		for _, sub := range result.Items {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			stats, err := s.usageStats(ctx, sub.OrganizationID, sub, UsageQuery{Period: PeriodCurrent}, now)
			if err != nil {
				logger.Error(ctx, "failed to compute usage rollup", err, "organization_id", sub.OrganizationID)
				continue
			}
			if err := s.snapshots.Save(ctx, snapshotOf(stats, now)); err != nil {
				logger.Error(ctx, "failed to save usage rollup", err, "organization_id", sub.OrganizationID)
				continue
			}
			written++
		}

		if page >= result.TotalPages {
			return written, nil
		}
	}
}

func snapshotOf(stats *UsageStats, now time.Time) *entity.UsageSnapshot {
	snapshot := &entity.UsageSnapshot{
		OrganizationID: stats.OrganizationID,
		Totals:         make(map[string]float64, len(stats.Metrics)),
		ComputedAt:     now,
	}
	if stats.PeriodStart != nil {
		snapshot.PeriodStart = *stats.PeriodStart
	}
	if stats.PeriodEnd != nil {
		snapshot.PeriodEnd = *stats.PeriodEnd
	}
	for name, usage := range stats.Metrics {
		snapshot.Totals[name] = usage.Used
	}
	return snapshot
}
