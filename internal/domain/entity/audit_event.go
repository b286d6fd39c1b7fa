package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// 审计动作
const (
	AuditTenantCreated      = "tenant.created"
	AuditTenantUpdated      = "tenant.updated"
	AuditTenantDeleted      = "tenant.deleted"
	AuditTenantSuspended    = "tenant.suspended"
	AuditTenantReactivated  = "tenant.reactivated"
	AuditOrgCreated         = "organization.created"
	AuditOrgMemberAdded     = "organization.member_added"
	AuditOrgMemberRemoved   = "organization.member_removed"
	AuditUserCreated        = "user.created"
	AuditUserUpdated        = "user.updated"
	AuditUserDeleted        = "user.deleted"
	AuditUserLogin          = "user.login"
	AuditPasswordChanged    = "user.password_changed"
	AuditPasswordResetIssue = "user.password_reset_requested"
	AuditPasswordResetDone  = "user.password_reset_completed"
	AuditSubCreated         = "subscription.created"
	AuditSubUpdated         = "subscription.updated"
	AuditSubCancelled       = "subscription.cancelled"
	AuditSubTrialEnded      = "subscription.trial_ended"
	AuditInvoiceCreated     = "invoice.created"
	AuditPaymentSucceeded   = "invoice.payment_succeeded"
	AuditPaymentFailed      = "invoice.payment_failed"
	AuditUsageTracked       = "usage.tracked"
)

// AuditEvent 审计事件，只追加，不更新不删除
type AuditEvent struct {
	ID        string            `json:"id" gorm:"type:uuid;primaryKey"`
	Action    string            `json:"action" gorm:"type:varchar(64);index;not null"`
	TenantID  *string           `json:"tenantId,omitempty" gorm:"type:varchar(36);index"`
	UserID    *string           `json:"userId,omitempty" gorm:"type:varchar(36);index"`
	RequestID string            `json:"requestId,omitempty" gorm:"type:varchar(64)"`
	Details   datatypes.JSONMap `json:"details" gorm:"type:jsonb"`
	CreatedAt time.Time         `json:"createdAt" gorm:"index;not null"`
}

// TableName 表名
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent 创建审计事件，空字符串视为缺省
func NewAuditEvent(action, tenantID, userID string, details map[string]any) *AuditEvent {
	ev := &AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Details:   datatypes.JSONMap(details),
		CreatedAt: time.Now().UTC(),
	}
	if ev.Details == nil {
		ev.Details = datatypes.JSONMap{}
	}
	if tenantID != "" {
		ev.TenantID = &tenantID
	}
	if userID != "" {
		ev.UserID = &userID
	}
	return ev
}
