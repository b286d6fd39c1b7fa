package entity

import (
	"github.com/shopspring/decimal"
)

// PlanID 套餐标识
type PlanID string

const (
	PlanBasic        PlanID = "basic"
	PlanProfessional PlanID = "professional"
	PlanEnterprise   PlanID = "enterprise"
)

// Valid 检查套餐是否存在于目录中
func (p PlanID) Valid() bool {
	_, ok := LookupPlan(p)
	return ok
}

// Unlimited 限额哨兵值
const Unlimited int64 = -1

const gigabyte int64 = 1 << 30

// 用量指标名称
const (
	MetricUsers    = "users"
	MetricProjects = "projects"
	MetricStorage  = "storage"
	MetricAPICalls = "apiCalls"
)

// PlanLimits 套餐限额，-1 表示不限
type PlanLimits struct {
	MaxUsers         int64 `json:"maxUsers"`
	MaxProjects      int64 `json:"maxProjects"`
	MaxStorage       int64 `json:"maxStorage"`
	APICallsPerMonth int64 `json:"apiCallsPerMonth"`
}

// ForMetric 返回指标对应的限额，未知指标不受限
func (l PlanLimits) ForMetric(metric string) (int64, bool) {
	switch metric {
	case MetricUsers:
		return l.MaxUsers, true
	case MetricProjects:
		return l.MaxProjects, true
	case MetricStorage:
		return l.MaxStorage, true
	case MetricAPICalls:
		return l.APICallsPerMonth, true
	}
	return Unlimited, false
}

// PlanPricing 套餐定价
type PlanPricing struct {
	Monthly decimal.Decimal `json:"monthly"`
	Yearly  decimal.Decimal `json:"yearly"`
}

// Plan 套餐目录条目，固定不持久化
type Plan struct {
	ID       PlanID      `json:"id"`
	Name     string      `json:"name"`
	Limits   PlanLimits  `json:"limits"`
	Pricing  PlanPricing `json:"pricing"`
	Features []string    `json:"features"`
}

// Price 根据计费周期返回价格
func (p Plan) Price(cycle BillingCycle) decimal.Decimal {
	if cycle == BillingCycleYearly {
		return p.Pricing.Yearly
	}
	return p.Pricing.Monthly
}

var planCatalog = []Plan{
	{
		ID:   PlanBasic,
		Name: "Basic",
		Limits: PlanLimits{
			MaxUsers:         10,
			MaxProjects:      5,
			MaxStorage:       1 * gigabyte,
			APICallsPerMonth: 10_000,
		},
		Pricing:  PlanPricing{Monthly: decimal.NewFromInt(29), Yearly: decimal.NewFromInt(290)},
		Features: []string{"basic_analytics", "email_support"},
	},
	{
		ID:   PlanProfessional,
		Name: "Professional",
		Limits: PlanLimits{
			MaxUsers:         50,
			MaxProjects:      25,
			MaxStorage:       10 * gigabyte,
			APICallsPerMonth: 100_000,
		},
		Pricing:  PlanPricing{Monthly: decimal.NewFromInt(99), Yearly: decimal.NewFromInt(990)},
		Features: []string{"advanced_analytics", "priority_support", "custom_domains", "api_access"},
	},
	{
		ID:   PlanEnterprise,
		Name: "Enterprise",
		Limits: PlanLimits{
			MaxUsers:         Unlimited,
			MaxProjects:      Unlimited,
			MaxStorage:       Unlimited,
			APICallsPerMonth: Unlimited,
		},
		Pricing:  PlanPricing{Monthly: decimal.NewFromInt(299), Yearly: decimal.NewFromInt(2990)},
		Features: []string{"advanced_analytics", "dedicated_support", "custom_domains", "api_access", "sso", "audit_export"},
	},
}

// Plans 返回套餐目录副本
func Plans() []Plan {
	out := make([]Plan, len(planCatalog))
	copy(out, planCatalog)
	return out
}

// LookupPlan 按标识查找套餐
func LookupPlan(id PlanID) (Plan, bool) {
	for _, p := range planCatalog {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
