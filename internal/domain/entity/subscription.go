package entity

import (
	"time"

	"github.com/google/uuid"
)

// BillingCycle 计费周期
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Valid 检查计费周期是否合法
func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

// months 每个周期的月数
func (c BillingCycle) months() int {
	if c == BillingCycleYearly {
		return 12
	}
	return 1
}

// SubscriptionStatus 订阅状态
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription 订阅实体，每个组织最多一个未取消的订阅
type Subscription struct {
	ID             string             `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID string             `json:"organizationId" gorm:"type:uuid;index;not null"`
	Plan           PlanID             `json:"plan" gorm:"type:varchar(32);not null"`
	BillingCycle   BillingCycle       `json:"billingCycle" gorm:"type:varchar(16);not null"`
	Currency       string             `json:"currency" gorm:"type:char(3);not null"`
	Status         SubscriptionStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	TrialEndsAt    *time.Time         `json:"trialEndsAt,omitempty"`
	StartedAt      time.Time          `json:"startedAt" gorm:"not null"`
	CancelReason   string             `json:"cancelReason,omitempty" gorm:"type:varchar(500)"`
	CancelledAt    *time.Time         `json:"cancelledAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// TableName 表名
func (Subscription) TableName() string {
	return "subscriptions"
}

// NewSubscription 创建订阅，trialDays > 0 时开启试用窗口
func NewSubscription(orgID string, plan PlanID, cycle BillingCycle, currency string, trialDays int) *Subscription {
	now := time.Now().UTC()
	sub := &Subscription{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Plan:           plan,
		BillingCycle:   cycle,
		Currency:       currency,
		Status:         SubscriptionStatusActive,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if trialDays > 0 {
		ends := now.AddDate(0, 0, trialDays)
		sub.TrialEndsAt = &ends
	}
	return sub
}

// IsCancelled 订阅是否已取消（终态）
func (s *Subscription) IsCancelled() bool {
	return s.Status == SubscriptionStatusCancelled
}

// InTrial 指定时刻是否处于试用期
func (s *Subscription) InTrial(at time.Time) bool {
	return s.TrialEndsAt != nil && at.Before(*s.TrialEndsAt)
}

// Cancel 取消订阅
func (s *Subscription) Cancel(reason string, at time.Time) {
	s.Status = SubscriptionStatusCancelled
	s.CancelReason = reason
	s.CancelledAt = &at
	s.UpdatedAt = at
}

// PeriodContaining 返回包含指定时刻的计费周期 [start, end)
// 周期以 StartedAt 为锚点按月或按年递推，早于锚点时返回首个周期。
func (s *Subscription) PeriodContaining(at time.Time) (time.Time, time.Time) {
	anchor := s.StartedAt.UTC()
	at = at.UTC()
	step := s.BillingCycle.months()

	if !at.After(anchor) {
		return anchor, anchor.AddDate(0, step, 0)
	}

	elapsed := (at.Year()-anchor.Year())*12 + int(at.Month()) - int(anchor.Month())
	k := elapsed / step
	if k > 0 {
		k--
	}
	for {
		start := anchor.AddDate(0, k*step, 0)
		end := anchor.AddDate(0, (k+1)*step, 0)
		switch {
		case at.Before(start) && k > 0:
			k--
		case !at.Before(end):
			k++
		default:
			return start, end
		}
	}
}

// Clone 拷贝订阅
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.TrialEndsAt != nil {
		t := *s.TrialEndsAt
		c.TrialEndsAt = &t
	}
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}
