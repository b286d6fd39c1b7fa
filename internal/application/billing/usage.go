package billing

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/metrics"
	"saas-tenancy-api/pkg/validate"
)

// 统计周期
const (
	PeriodCurrent = "current"
	PeriodAll     = "all"
)

// TrackUsageInput 用量上报参数
type TrackUsageInput struct {
	Metric string  `json:"metric" validate:"required,max=64"`
	Value  float64 `json:"value"`
}

// UsageQuery 用量统计区间；From/To 优先于 Period
type UsageQuery struct {
	Period string     `json:"period" validate:"omitempty,oneof=current all"`
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`
}

// MetricUsage 单个指标相对套餐限额的用量
type MetricUsage struct {
	Used      float64 `json:"used"`
	Count     int64   `json:"count"`
	Limit     int64   `json:"limit"`
	Unlimited bool    `json:"unlimited"`
	Exceeded  bool    `json:"exceeded"`
}

// UsageStats 组织用量统计
type UsageStats struct {
	OrganizationID string
	Plan           entity.PlanID
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	Metrics        map[string]MetricUsage
}

// limitedMetrics 套餐限额覆盖的指标，统计结果中总是出现
var limitedMetrics = []string{entity.MetricUsers, entity.MetricProjects, entity.MetricStorage, entity.MetricAPICalls}

// TrackUsage 追加一条用量记录，写入时不做限额校验
func (s *Service) TrackUsage(ctx context.Context, orgID string, in TrackUsageInput) (*entity.UsageRecord, error) {
	ctx, span := tracer.Start(ctx, "billing.TrackUsage")
	defer span.End()

	in.Metric = strings.TrimSpace(in.Metric)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if math.IsNaN(in.Value) || math.IsInf(in.Value, 0) {
		return nil, errors.InvalidParam("value must be a finite number")
	}

	if err := s.requireOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, orgID, false); err != nil {
		return nil, err
	}

	record := entity.NewUsageRecord(orgID, in.Metric, in.Value)
	if err := s.usage.Append(ctx, record); err != nil {
		span.RecordError(err)
		return nil, errors.Database(err, "failed to record usage")
	}
	metrics.UsageRecordedTotal.WithLabelValues(in.Metric).Inc()

	s.audit.Log(ctx, entity.AuditUsageTracked, "", map[string]any{
		"organizationId": orgID,
		"metric":         in.Metric,
		"value":          in.Value,
	})
	return record, nil
}

// GetUsageStats 按区间聚合用量并对照套餐限额
func (s *Service) GetUsageStats(ctx context.Context, orgID string, q UsageQuery) (*UsageStats, error) {
	ctx, span := tracer.Start(ctx, "billing.GetUsageStats")
	defer span.End()

	if err := validate.Struct(q); err != nil {
		return nil, err
	}
	if q.From != nil && q.To != nil && !q.From.Before(*q.To) {
		return nil, errors.InvalidParam("from must be before to")
	}
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
	stats, err := s.usageStats(ctx, orgID, sub, q, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return stats, nil
}

// resolvePeriod 计算统计区间，返回零值表示不限
// current 为订阅中包含 now 的计费周期，无订阅时为当前自然月。
func resolvePeriod(sub *entity.Subscription, q UsageQuery, now time.Time) (time.Time, time.Time) {
	if q.From != nil || q.To != nil {
		var from, to time.Time
		if q.From != nil {
			from = q.From.UTC()
		}
		if q.To != nil {
			to = q.To.UTC()
		}
		return from, to
	}
	if q.Period == PeriodAll {
		return time.Time{}, time.Time{}
	}
	if sub != nil {
		return sub.PeriodContaining(now)
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func (s *Service) usageStats(ctx context.Context, orgID string, sub *entity.Subscription, q UsageQuery, now time.Time) (*UsageStats, error) {
	from, to := resolvePeriod(sub, q, now)
	aggregates, err := s.usage.Aggregate(ctx, orgID, from, to)
	if err != nil {
		return nil, errors.Database(err, "failed to aggregate usage")
	}

	// 无订阅的组织按 basic 套餐限额计算
	planID := entity.PlanBasic
	if sub != nil {
		planID = sub.Plan
	}
	plan, _ := entity.LookupPlan(planID)

	stats := &UsageStats{
		OrganizationID: orgID,
		Plan:           planID,
		Metrics:        make(map[string]MetricUsage, len(limitedMetrics)+len(aggregates)),
	}
	if !from.IsZero() {
		stats.PeriodStart = &from
	}
	if !to.IsZero() {
		stats.PeriodEnd = &to
	}

	for _, metric := range limitedMetrics {
		stats.Metrics[metric] = evaluate(plan.Limits, metric, 0, 0)
	}
	for _, agg := range aggregates {
		stats.Metrics[agg.Metric] = evaluate(plan.Limits, agg.Metric, agg.Total, agg.Count)
	}
	return stats, nil
}

func evaluate(limits entity.PlanLimits, metric string, used float64, count int64) MetricUsage {
	limit, _ := limits.ForMetric(metric)
	u := MetricUsage{
		Used:      used,
		Count:     count,
		Limit:     limit,
		Unlimited: limit == entity.Unlimited,
	}
	u.Exceeded = !u.Unlimited && used > float64(limit)
	return u
}

// MetricNames 返回排序后的指标名
func (u *UsageStats) MetricNames() []string {
	names := make([]string, 0, len(u.Metrics))
	for name := range u.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
