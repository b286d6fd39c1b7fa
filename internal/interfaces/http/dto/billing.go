package dto

import (
	"github.com/shopspring/decimal"

	"saas-tenancy-api/internal/application/billing"
	"saas-tenancy-api/internal/domain/entity"
)

// SubscriptionResponse 订阅响应
type SubscriptionResponse struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organizationId"`
	Plan           string  `json:"plan"`
	BillingCycle   string  `json:"billingCycle"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	TrialEndsAt    *string `json:"trialEndsAt,omitempty"`
	StartedAt      string  `json:"startedAt"`
	CancelReason   string  `json:"cancelReason,omitempty"`
	CancelledAt    *string `json:"cancelledAt,omitempty"`
	CreatedAt      string  `json:"createdAt"`
	UpdatedAt      string  `json:"updatedAt"`
}

// ToSubscriptionResponse 实体转换为响应
func ToSubscriptionResponse(s *entity.Subscription) *SubscriptionResponse {
	if s == nil {
		return nil
	}
	return &SubscriptionResponse{
		ID:             s.ID,
		OrganizationID: s.OrganizationID,
		Plan:           string(s.Plan),
		BillingCycle:   string(s.BillingCycle),
		Currency:       s.Currency,
		Status:         string(s.Status),
		TrialEndsAt:    formatTimePtr(s.TrialEndsAt),
		StartedAt:      formatTime(s.StartedAt),
		CancelReason:   s.CancelReason,
		CancelledAt:    formatTimePtr(s.CancelledAt),
		CreatedAt:      formatTime(s.CreatedAt),
		UpdatedAt:      formatTime(s.UpdatedAt),
	}
}

// CancelSubscriptionRequest 取消订阅请求
type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

// LineItemResponse 账单明细响应
type LineItemResponse struct {
	Description string  `json:"description"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
}

// InvoiceResponse 账单响应，金额以数值输出
type InvoiceResponse struct {
	ID              string             `json:"id"`
	SubscriptionID  string             `json:"subscriptionId"`
	OrganizationID  string             `json:"organizationId"`
	LineItems       []LineItemResponse `json:"lineItems"`
	Total           float64            `json:"total"`
	Currency        string             `json:"currency"`
	Status          string             `json:"status"`
	PeriodStart     string             `json:"periodStart"`
	PeriodEnd       string             `json:"periodEnd"`
	PaymentMethod   string             `json:"paymentMethod,omitempty"`
	PaymentAttempts int                `json:"paymentAttempts"`
	TransactionID   string             `json:"transactionId,omitempty"`
	FailureReason   string             `json:"failureReason,omitempty"`
	PaidAt          *string            `json:"paidAt,omitempty"`
	CreatedAt       string             `json:"createdAt"`
	UpdatedAt       string             `json:"updatedAt"`
}

// ToInvoiceResponse 实体转换为响应
func ToInvoiceResponse(i *entity.Invoice) *InvoiceResponse {
	if i == nil {
		return nil
	}
	items := make([]LineItemResponse, 0, len(i.LineItems))
	for _, li := range i.LineItems {
		items = append(items, LineItemResponse{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice.InexactFloat64(),
			Amount:      li.Amount.InexactFloat64(),
		})
	}
	return &InvoiceResponse{
		ID:              i.ID,
		SubscriptionID:  i.SubscriptionID,
		OrganizationID:  i.OrganizationID,
		LineItems:       items,
		Total:           i.Total.InexactFloat64(),
		Currency:        i.Currency,
		Status:          string(i.Status),
		PeriodStart:     formatTime(i.PeriodStart),
		PeriodEnd:       formatTime(i.PeriodEnd),
		PaymentMethod:   i.PaymentMethod,
		PaymentAttempts: i.PaymentAttempts,
		TransactionID:   i.TransactionID,
		FailureReason:   i.FailureReason,
		PaidAt:          formatTimePtr(i.PaidAt),
		CreatedAt:       formatTime(i.CreatedAt),
		UpdatedAt:       formatTime(i.UpdatedAt),
	}
}

// ToInvoiceResponses 批量转换
func ToInvoiceResponses(items []*entity.Invoice) []*InvoiceResponse {
	out := make([]*InvoiceResponse, 0, len(items))
	for _, i := range items {
		out = append(out, ToInvoiceResponse(i))
	}
	return out
}

// PaymentRequest 支付请求
type PaymentRequest struct {
	PaymentMethod string           `json:"paymentMethod"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency"`
}

// ToInput 转换为应用层参数
func (r PaymentRequest) ToInput() billing.PaymentInput {
	return billing.PaymentInput{
		PaymentMethod: r.PaymentMethod,
		Amount:        r.Amount,
		Currency:      r.Currency,
	}
}

// PaymentResponse 支付结果响应
type PaymentResponse struct {
	Success       bool             `json:"success"`
	InvoiceID     string           `json:"invoiceId"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	PaymentMethod string           `json:"paymentMethod"`
	TransactionID string           `json:"transactionId,omitempty"`
	FailureReason string           `json:"failureReason,omitempty"`
	Invoice       *InvoiceResponse `json:"invoice"`
}

// ToPaymentResponse 支付结果转换为响应
func ToPaymentResponse(r *billing.PaymentResult) *PaymentResponse {
	if r == nil {
		return nil
	}
	resp := &PaymentResponse{
		Success:       r.Success,
		Amount:        r.Amount.InexactFloat64(),
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethod,
		TransactionID: r.TransactionID,
		FailureReason: r.FailureReason,
		Invoice:       ToInvoiceResponse(r.Invoice),
	}
	if r.Invoice != nil {
		resp.InvoiceID = r.Invoice.ID
	}
	return resp
}

// UsageRecordResponse 用量记录响应
type UsageRecordResponse struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organizationId"`
	Metric         string  `json:"metric"`
	Value          float64 `json:"value"`
	Timestamp      string  `json:"timestamp"`
}

// ToUsageRecordResponse 实体转换为响应
func ToUsageRecordResponse(r *entity.UsageRecord) *UsageRecordResponse {
	if r == nil {
		return nil
	}
	return &UsageRecordResponse{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Metric:         r.Metric,
		Value:          r.Value,
		Timestamp:      formatTime(r.RecordedAt),
	}
}

// UsageStatsResponse 用量统计响应
type UsageStatsResponse struct {
	OrganizationID string                         `json:"organizationId"`
	Plan           string                         `json:"plan"`
	PeriodStart    *string                        `json:"periodStart,omitempty"`
	PeriodEnd      *string                        `json:"periodEnd,omitempty"`
	Metrics        map[string]billing.MetricUsage `json:"metrics"`
}

// ToUsageStatsResponse 统计结果转换为响应
func ToUsageStatsResponse(s *billing.UsageStats) *UsageStatsResponse {
	if s == nil {
		return nil
	}
	metrics := s.Metrics
	if metrics == nil {
		metrics = map[string]billing.MetricUsage{}
	}
	return &UsageStatsResponse{
		OrganizationID: s.OrganizationID,
		Plan:           string(s.Plan),
		PeriodStart:    formatTimePtr(s.PeriodStart),
		PeriodEnd:      formatTimePtr(s.PeriodEnd),
		Metrics:        metrics,
	}
}

// PlanResponse 套餐目录响应
type PlanResponse struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Limits   entity.PlanLimits  `json:"limits"`
	Pricing  map[string]float64 `json:"pricing"`
	Features []string           `json:"features"`
}

// ToPlanResponses 套餐目录转换为响应
func ToPlanResponses(plans []entity.Plan) []*PlanResponse {
	out := make([]*PlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, ToPlanResponse(&p))
	}
	return out
}

// ToPlanResponse 单个套餐转换为响应
func ToPlanResponse(p *entity.Plan) *PlanResponse {
	if p == nil {
		return nil
	}
	return &PlanResponse{
		ID:     string(p.ID),
		Name:   p.Name,
		Limits: p.Limits,
		Pricing: map[string]float64{
			string(entity.BillingCycleMonthly): p.Pricing.Monthly.InexactFloat64(),
			string(entity.BillingCycleYearly):  p.Pricing.Yearly.InexactFloat64(),
		},
		Features: append([]string(nil), p.Features...),
	}
}

// UsageSnapshotResponse 用量汇总快照响应
type UsageSnapshotResponse struct {
	PeriodStart string             `json:"periodStart"`
	PeriodEnd   string             `json:"periodEnd"`
	Totals      map[string]float64 `json:"totals"`
	ComputedAt  string             `json:"computedAt"`
}

// BillingSummaryResponse 计费概览响应
type BillingSummaryResponse struct {
	OrganizationID   string                 `json:"organizationId"`
	Subscription     *SubscriptionResponse  `json:"subscription"`
	Plan             *PlanResponse          `json:"plan"`
	Currency         string                 `json:"currency"`
	InvoiceCounts    map[string]int         `json:"invoiceCounts"`
	TotalPaid        float64                `json:"totalPaid"`
	TotalOutstanding float64                `json:"totalOutstanding"`
	LastPaymentAt    *string                `json:"lastPaymentAt,omitempty"`
	Usage            *UsageStatsResponse    `json:"usage"`
	LatestRollup     *UsageSnapshotResponse `json:"latestRollup,omitempty"`
}

// ToBillingSummaryResponse 概览转换为响应
func ToBillingSummaryResponse(s *billing.BillingSummary) *BillingSummaryResponse {
	if s == nil {
		return nil
	}
	counts := make(map[string]int, len(s.InvoiceCounts))
	for status, n := range s.InvoiceCounts {
		counts[string(status)] = n
	}
	resp := &BillingSummaryResponse{
		OrganizationID:   s.OrganizationID,
		Subscription:     ToSubscriptionResponse(s.Subscription),
		Plan:             ToPlanResponse(s.Plan),
		Currency:         s.Currency,
		InvoiceCounts:    counts,
		TotalPaid:        s.TotalPaid.InexactFloat64(),
		TotalOutstanding: s.TotalOutstanding.InexactFloat64(),
		LastPaymentAt:    formatTimePtr(s.LastPaymentAt),
		Usage:            ToUsageStatsResponse(s.Usage),
	}
	if snap := s.LatestRollup; snap != nil {
		resp.LatestRollup = &UsageSnapshotResponse{
			PeriodStart: formatTime(snap.PeriodStart),
			PeriodEnd:   formatTime(snap.PeriodEnd),
			Totals:      snap.Totals,
			ComputedAt:  formatTime(snap.ComputedAt),
		}
	}
	return resp
}
