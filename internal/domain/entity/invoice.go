package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus 账单状态
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "pending"
	InvoiceStatusProcessing InvoiceStatus = "processing"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	InvoiceStatusFailed     InvoiceStatus = "failed"
)

// Valid 检查状态值是否合法
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusProcessing, InvoiceStatusPaid, InvoiceStatusFailed:
		return true
	}
	return false
}

// InvoiceLineItem 账单明细
type InvoiceLineItem struct {
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice 账单实体，支付成功后不可变
type Invoice struct {
	ID              string            `json:"id" gorm:"type:uuid;primaryKey"`
	SubscriptionID  string            `json:"subscriptionId" gorm:"type:uuid;index;not null"`
	OrganizationID  string            `json:"organizationId" gorm:"type:uuid;index;not null"`
	LineItems       []InvoiceLineItem `json:"lineItems" gorm:"serializer:json;type:jsonb"`
	Total           decimal.Decimal   `json:"total" gorm:"type:numeric(12,2);not null"`
	Currency        string            `json:"currency" gorm:"type:char(3);not null"`
	Status          InvoiceStatus     `json:"status" gorm:"type:varchar(16);index;not null"`
	PeriodStart     time.Time         `json:"periodStart"`
	PeriodEnd       time.Time         `json:"periodEnd"`
	PaymentMethod   string            `json:"paymentMethod,omitempty" gorm:"type:varchar(64)"`
	PaymentAttempts int               `json:"paymentAttempts" gorm:"not null;default:0"`
	TransactionID   string            `json:"transactionId,omitempty" gorm:"type:varchar(128)"`
	FailureReason   string            `json:"failureReason,omitempty" gorm:"type:varchar(255)"`
	PaidAt          *time.Time        `json:"paidAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt" gorm:"index"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// TableName 表名
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice 根据订阅周期与套餐价格生成账单
func NewInvoice(sub *Subscription, plan Plan, periodStart, periodEnd time.Time) *Invoice {
	now := time.Now().UTC()
	price := plan.Price(sub.BillingCycle)
	items := []InvoiceLineItem{{
		Description: plan.Name + " plan (" + string(sub.BillingCycle) + ")",
		Quantity:    1,
		UnitPrice:   price,
		Amount:      price,
	}}

	return &Invoice{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		OrganizationID: sub.OrganizationID,
		LineItems:      items,
		Total:          SumLineItems(items),
		Currency:       sub.Currency,
		Status:         InvoiceStatusPending,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SumLineItems 汇总明细金额
func SumLineItems(items []InvoiceLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

// IsPaid 是否已支付
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

// IsProcessing 是否有支付正在进行
func (i *Invoice) IsProcessing() bool {
	return i.Status == InvoiceStatusProcessing
}

// IdempotencyKey 当前支付尝试的幂等键，同一次尝试重复提交网关时保持不变
func (i *Invoice) IdempotencyKey() string {
	return fmt.Sprintf("%s-%d", i.ID, i.PaymentAttempts)
}

// Payable 是否可发起支付（待支付或失败重试）
func (i *Invoice) Payable() bool {
	return i.Status == InvoiceStatusPending || i.Status == InvoiceStatusFailed
}

// Clone 拷贝账单
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	c.LineItems = append([]InvoiceLineItem(nil), i.LineItems...)
	if i.PaidAt != nil {
		t := *i.PaidAt
		c.PaidAt = &t
	}
	return &c
}
