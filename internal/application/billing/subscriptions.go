package billing

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/metrics"
	"saas-tenancy-api/pkg/validate"
)

// CreateSubscriptionInput 创建订阅参数
type CreateSubscriptionInput struct {
	Plan         entity.PlanID       `json:"plan" validate:"required,oneof=basic professional enterprise"`
	BillingCycle entity.BillingCycle `json:"billingCycle" validate:"omitempty,oneof=monthly yearly"`
	Currency     string              `json:"currency" validate:"omitempty,currency"`
	TrialPeriod  int                 `json:"trialPeriod" validate:"min=0,max=30"`
}

// UpdateSubscriptionInput 部分更新参数
type UpdateSubscriptionInput struct {
	Plan         *entity.PlanID             `json:"plan" validate:"omitempty,oneof=basic professional enterprise"`
	BillingCycle *entity.BillingCycle       `json:"billingCycle" validate:"omitempty,oneof=monthly yearly"`
	Status       *entity.SubscriptionStatus `json:"status" validate:"omitempty,oneof=active suspended cancelled"`
}

func subscriptionNotFound() *errors.AppError {
	return errors.New(errors.CodeSubscriptionNotFound, "subscription not found")
}

func subscriptionCancelled() *errors.AppError {
	return errors.New(errors.CodeSubscriptionCancelled, "subscription is cancelled")
}

// lookupSubscription 读取订阅，不存在时返回 SubscriptionNotFound
func (s *Service) lookupSubscription(ctx context.Context, id string) (*entity.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Database(err, "failed to get subscription")
	}
	if sub == nil {
		return nil, subscriptionNotFound()
	}
	return sub, nil
}

// CreateSubscription 为组织创建订阅，组织已有未取消订阅时返回 Conflict
func (s *Service) CreateSubscription(ctx context.Context, orgID string, in CreateSubscriptionInput) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "billing.CreateSubscription")
	defer span.End()
	span.SetAttributes(attribute.String("organization.id", orgID))

	in.Currency = normalizeCurrency(in.Currency)
	if in.Currency == "" {
		in.Currency = s.cfg.DefaultCurrency
	}
	if in.BillingCycle == "" {
		in.BillingCycle = entity.BillingCycleMonthly
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.TrialPeriod > s.cfg.TrialMaxDays {
		return nil, errors.Newf(errors.CodeInvalidParam, "trialPeriod must be at most %d", s.cfg.TrialMaxDays)
	}

	if err := s.requireOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, orgID, true); err != nil {
		return nil, err
	}

	sub := entity.NewSubscription(orgID, in.Plan, in.BillingCycle, in.Currency, in.TrialPeriod)
	if err := s.subs.Create(ctx, sub); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, errors.Conflict("organization already has an active subscription")
		}
		span.RecordError(err)
		return nil, errors.Database(err, "failed to create subscription")
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(sub.Status)).Inc()

	details := map[string]any{
		"subscriptionId": sub.ID,
		"organizationId": orgID,
		"plan":           string(sub.Plan),
		"billingCycle":   string(sub.BillingCycle),
		"currency":       sub.Currency,
	}
	if sub.TrialEndsAt != nil {
		details["trialEndsAt"] = sub.TrialEndsAt.Format(time.RFC3339)
	}
	s.audit.Log(ctx, entity.AuditSubCreated, "", details)
	return sub, nil
}

// GetSubscription 获取订阅
func (s *Service) GetSubscription(ctx context.Context, id string) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "billing.GetSubscription")
	defer span.End()

	sub, err := s.lookupSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sub.OrganizationID, false); err != nil {
		return nil, err
	}
	return sub, nil
}

// GetSubscriptionByOrganization 获取组织当前订阅
func (s *Service) GetSubscriptionByOrganization(ctx context.Context, orgID string) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "billing.GetSubscriptionByOrganization")
	defer span.End()

	if err := s.requireOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	sub, err := s.subs.GetCurrentByOrganization(ctx, orgID)
	if err != nil {
		return nil, errors.Database(err, "failed to get subscription")
	}
	if sub == nil {
		return nil, subscriptionNotFound()
	}
	if err := s.authorize(ctx, orgID, false); err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdateSubscription 更新套餐、计费周期或状态；已取消的订阅不可再变更
func (s *Service) UpdateSubscription(ctx context.Context, id string, in UpdateSubscriptionInput) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "billing.UpdateSubscription")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	sub, err := s.lookupSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sub.OrganizationID, true); err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return nil, subscriptionCancelled()
	}

	now := time.Now().UTC()
	changes := make([]string, 0, 3)
	if in.Plan != nil && *in.Plan != sub.Plan {
		sub.Plan = *in.Plan
		changes = append(changes, "plan")
	}
	if in.BillingCycle != nil && *in.BillingCycle != sub.BillingCycle {
		sub.BillingCycle = *in.BillingCycle
		changes = append(changes, "billingCycle")
	}
	if in.Status != nil && *in.Status != sub.Status {
		if *in.Status == entity.SubscriptionStatusCancelled {
			sub.Cancel("", now)
		} else {
			sub.Status = *in.Status
		}
		changes = append(changes, "status")
	}
	if len(changes) == 0 {
		return sub, nil
	}
	sub.UpdatedAt = now

	if err := s.subs.Update(ctx, sub); err != nil {
		if stderrors.Is(err, repository.ErrStaleState) {
			return nil, subscriptionCancelled()
		}
		span.RecordError(err)
		return nil, errors.Database(err, "failed to update subscription")
	}
	if in.Status != nil {
		metrics.SubscriptionTransitions.WithLabelValues(string(sub.Status)).Inc()
	}

	s.audit.Log(ctx, entity.AuditSubUpdated, "", map[string]any{
		"subscriptionId": sub.ID,
		"organizationId": sub.OrganizationID,
		"changes":        changes,
		"status":         string(sub.Status),
	})
	return sub, nil
}

// CancelSubscription 取消订阅，终态
func (s *Service) CancelSubscription(ctx context.Context, id, reason string) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "billing.CancelSubscription")
	defer span.End()

	if err := validate.Var("reason", reason, "max=500"); err != nil {
		return nil, err
	}

	sub, err := s.lookupSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sub.OrganizationID, true); err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return nil, subscriptionCancelled()
	}

	sub.Cancel(reason, time.Now().UTC())
	if err := s.subs.Update(ctx, sub); err != nil {
		if stderrors.Is(err, repository.ErrStaleState) {
			return nil, subscriptionCancelled()
		}
		span.RecordError(err)
		return nil, errors.Database(err, "failed to cancel subscription")
	}
	metrics.SubscriptionTransitions.WithLabelValues(string(sub.Status)).Inc()

	s.audit.Log(ctx, entity.AuditSubCancelled, "", map[string]any{
		"subscriptionId": sub.ID,
		"organizationId": sub.OrganizationID,
		"reason":         reason,
	})
	return sub, nil
}
