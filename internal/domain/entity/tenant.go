// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// TenantStatus 租户状态
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusInactive  TenantStatus = "inactive"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Valid 检查状态值是否合法
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusActive, TenantStatusInactive, TenantStatusSuspended:
		return true
	}
	return false
}

// 租户可更新列，部分更新只写入变更的列
const (
	TenantColumnName            = "name"
	TenantColumnDomain          = "domain"
	TenantColumnSubdomain       = "subdomain"
	TenantColumnPlan            = "plan"
	TenantColumnFeatures        = "features"
	TenantColumnSettings        = "settings"
	TenantColumnStatus          = "status"
	TenantColumnSuspendedReason = "suspended_reason"
	TenantColumnSuspendedAt     = "suspended_at"
)

// TenantStatusColumns 状态迁移一并写入的列
var TenantStatusColumns = []string{TenantColumnStatus, TenantColumnSuspendedReason, TenantColumnSuspendedAt}

// Tenant 租户实体
type Tenant struct {
	ID              string            `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID  string            `json:"organizationId" gorm:"type:uuid;index;not null"`
	Name            string            `json:"name" gorm:"type:varchar(100);not null"`
	Domain          string            `json:"domain" gorm:"type:varchar(100);uniqueIndex;not null"`
	Subdomain       *string           `json:"subdomain,omitempty" gorm:"type:varchar(50);uniqueIndex"`
	Plan            PlanID            `json:"plan" gorm:"type:varchar(32);not null;default:'basic'"`
	Features        pq.StringArray    `json:"features" gorm:"type:text[]"`
	Settings        datatypes.JSONMap `json:"settings" gorm:"type:jsonb"`
	Status          TenantStatus      `json:"status" gorm:"type:varchar(16);index;not null"`
	CreatedBy       string            `json:"createdBy,omitempty" gorm:"type:varchar(36)"`
	SuspendedReason string            `json:"suspendedReason,omitempty" gorm:"type:varchar(500)"`
	SuspendedAt     *time.Time        `json:"suspendedAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// TableName 表名
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant 创建新租户，状态默认为 active
func NewTenant(orgID, name, domain string, plan PlanID) *Tenant {
	now := time.Now().UTC()
	if plan == "" {
		plan = PlanBasic
	}
	return &Tenant{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           name,
		Domain:         domain,
		Plan:           plan,
		Features:       pq.StringArray{},
		Settings:       datatypes.JSONMap{},
		Status:         TenantStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsActive 检查租户是否活跃
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// IsSuspended 检查租户是否已暂停
func (t *Tenant) IsSuspended() bool {
	return t.Status == TenantStatusSuspended
}

// Suspend 暂停租户，重复调用会覆盖原因与时间
func (t *Tenant) Suspend(reason string, at time.Time) {
	t.Status = TenantStatusSuspended
	t.SuspendedReason = reason
	t.SuspendedAt = &at
	t.UpdatedAt = at
}

// Reactivate 恢复租户为 active
func (t *Tenant) Reactivate(at time.Time) {
	t.Status = TenantStatusActive
	t.SuspendedReason = ""
	t.SuspendedAt = nil
	t.UpdatedAt = at
}

// SubdomainValue 返回子域名，未设置时为空串
func (t *Tenant) SubdomainValue() string {
	if t.Subdomain == nil {
		return ""
	}
	return *t.Subdomain
}

// Clone 深拷贝租户
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	if t.Subdomain != nil {
		s := *t.Subdomain
		c.Subdomain = &s
	}
	if t.SuspendedAt != nil {
		at := *t.SuspendedAt
		c.SuspendedAt = &at
	}
	c.Features = append(pq.StringArray{}, t.Features...)
	c.Settings = cloneJSONMap(t.Settings)
	return &c
}

func cloneJSONMap(m datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
