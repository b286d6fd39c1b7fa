// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/application/billing"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/interfaces/http/dto"
)

// BillingHandler 订阅与计费处理器
type BillingHandler struct {
	billing *billing.Service
}

// NewBillingHandler 创建计费处理器
func NewBillingHandler(billing *billing.Service) *BillingHandler {
	return &BillingHandler{billing: billing}
}

// createSubscriptionRequest 创建订阅请求，组织缺省时取租户上下文
type createSubscriptionRequest struct {
	OrganizationID string `json:"organizationId"`
	billing.CreateSubscriptionInput
}

// CreateSubscription 创建订阅
// @Summary 创建订阅
// @Tags Billing
// @Accept json
// @Produce json
// @Param body body createSubscriptionRequest true "订阅信息"
// @Success 201 {object} dto.Response[dto.SubscriptionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/billing/subscriptions [post]
func (h *BillingHandler) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	orgID, ok := organizationScope(c, req.OrganizationID)
	if !ok {
		return
	}

	sub, err := h.billing.CreateSubscription(c.Request.Context(), orgID, req.CreateSubscriptionInput)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToSubscriptionResponse(sub))
}

// GetCurrentSubscription 组织当前订阅
// @Summary 组织当前订阅
// @Tags Billing
// @Produce json
// @Param organizationId query string false "组织 ID"
// @Success 200 {object} dto.Response[dto.SubscriptionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/billing/subscriptions [get]
func (h *BillingHandler) GetCurrentSubscription(c *gin.Context) {
	orgID, ok := organizationScope(c, c.Query("organizationId"))
	if !ok {
		return
	}

	sub, err := h.billing.GetSubscriptionByOrganization(c.Request.Context(), orgID)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToSubscriptionResponse(sub))
}

// GetSubscription 获取订阅
// @Summary 获取订阅
// @Tags Billing
// @Produce json
// @Param id path string true "订阅 ID"
// @Success 200 {object} dto.Response[dto.SubscriptionResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/billing/subscriptions/{id} [get]
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	sub, err := h.billing.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToSubscriptionResponse(sub))
}

// UpdateSubscription 更新订阅
// @Summary 更新订阅
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "订阅 ID"
// @Param body body billing.UpdateSubscriptionInput true "更新内容"
// @Success 200 {object} dto.Response[dto.SubscriptionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/billing/subscriptions/{id} [put]
func (h *BillingHandler) UpdateSubscription(c *gin.Context) {
	var req billing.UpdateSubscriptionInput
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.billing.UpdateSubscription(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToSubscriptionResponse(sub))
}

// CancelSubscription 取消订阅
// @Summary 取消订阅
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "订阅 ID"
// @Param body body dto.CancelSubscriptionRequest false "取消原因"
// @Success 200 {object} dto.Response[dto.SubscriptionResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/billing/subscriptions/{id} [delete]
func (h *BillingHandler) CancelSubscription(c *gin.Context) {
	var req dto.CancelSubscriptionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	sub, err := h.billing.CancelSubscription(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.SuccessWithMessage(c, dto.ToSubscriptionResponse(sub), "subscription cancelled")
}

// createInvoiceRequest 创建账单请求
type createInvoiceRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

// CreateInvoice 按订阅生成当前周期账单
// @Summary 生成账单
// @Tags Billing
// @Accept json
// @Produce json
// @Param body body createInvoiceRequest true "订阅 ID"
// @Success 201 {object} dto.Response[dto.InvoiceResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/billing/invoices [post]
func (h *BillingHandler) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	invoice, err := h.billing.CreateInvoice(c.Request.Context(), req.SubscriptionID)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToInvoiceResponse(invoice))
}

// ListInvoices 账单列表
// @Summary 账单列表
// @Tags Billing
// @Produce json
// @Param organizationId query string false "组织 ID"
// @Param status query string false "状态"
// @Param from query string false "起始时间 RFC3339"
// @Param to query string false "截止时间 RFC3339"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} dto.Response[[]dto.InvoiceResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/billing/invoices [get]
func (h *BillingHandler) ListInvoices(c *gin.Context) {
	orgID, ok := organizationScope(c, c.Query("organizationId"))
	if !ok {
		return
	}
	from, err := dto.QueryTime(c, "from")
	if err != nil {
		dto.Fail(c, err)
		return
	}
	to, err := dto.QueryTime(c, "to")
	if err != nil {
		dto.Fail(c, err)
		return
	}

	in := billing.ListInvoicesInput{
		Status: entity.InvoiceStatus(c.Query("status")),
		From:   from,
		To:     to,
	}
	result, err := h.billing.ListInvoices(c.Request.Context(), orgID, in, dto.BindPage(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Paged(c, dto.ToInvoiceResponses(result.Items), dto.NewPagination(result))
}

// GetInvoice 获取账单
// @Summary 获取账单
// @Tags Billing
// @Produce json
// @Param id path string true "账单 ID"
// @Success 200 {object} dto.Response[dto.InvoiceResponse]
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/billing/invoices/{id} [get]
func (h *BillingHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.billing.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToInvoiceResponse(invoice))
}

// ProcessPayment 支付账单
// 支付被拒属于业务结果：返回 200 且 success 为 false。
// @Summary 支付账单
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "账单 ID"
// @Param body body dto.PaymentRequest true "支付信息"
// @Success 200 {object} dto.Response[dto.PaymentResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/billing/invoices/{id}/payment [post]
func (h *BillingHandler) ProcessPayment(c *gin.Context) {
	var req dto.PaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.billing.ProcessPayment(c.Request.Context(), c.Param("id"), req.ToInput())
	if err != nil {
		dto.Fail(c, err)
		return
	}

	message := "payment processed"
	if !result.Success {
		message = "payment failed: " + result.FailureReason
	}
	dto.Outcome(c, result.Success, dto.ToPaymentResponse(result), message)
}

// trackUsageRequest 用量上报请求
type trackUsageRequest struct {
	OrganizationID string `json:"organizationId"`
	billing.TrackUsageInput
}

// TrackUsage 上报用量
// @Summary 上报用量
// @Tags Billing
// @Accept json
// @Produce json
// @Param body body trackUsageRequest true "用量"
// @Success 201 {object} dto.Response[dto.UsageRecordResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /api/billing/usage [post]
func (h *BillingHandler) TrackUsage(c *gin.Context) {
	var req trackUsageRequest
	if !bindJSON(c, &req) {
		return
	}
	orgID, ok := organizationScope(c, req.OrganizationID)
	if !ok {
		return
	}

	record, err := h.billing.TrackUsage(c.Request.Context(), orgID, req.TrackUsageInput)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Created(c, dto.ToUsageRecordResponse(record))
}

// GetUsageStats 用量统计
// @Summary 用量统计
// @Tags Billing
// @Produce json
// @Param organizationId query string false "组织 ID"
// @Param period query string false "current 或 all"
// @Param from query string false "起始时间 RFC3339"
// @Param to query string false "截止时间 RFC3339"
// @Success 200 {object} dto.Response[dto.UsageStatsResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/billing/usage/stats [get]
func (h *BillingHandler) GetUsageStats(c *gin.Context) {
	orgID, ok := organizationScope(c, c.Query("organizationId"))
	if !ok {
		return
	}
	from, err := dto.QueryTime(c, "from")
	if err != nil {
		dto.Fail(c, err)
		return
	}
	to, err := dto.QueryTime(c, "to")
	if err != nil {
		dto.Fail(c, err)
		return
	}

	stats, err := h.billing.GetUsageStats(c.Request.Context(), orgID, billing.UsageQuery{
		Period: c.Query("period"),
		From:   from,
		To:     to,
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToUsageStatsResponse(stats))
}

// GetSummary 计费概览
// @Summary 计费概览
// @Tags Billing
// @Produce json
// @Param organizationId query string false "组织 ID"
// @Success 200 {object} dto.Response[dto.BillingSummaryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/billing/summary [get]
func (h *BillingHandler) GetSummary(c *gin.Context) {
	orgID, ok := organizationScope(c, c.Query("organizationId"))
	if !ok {
		return
	}

	summary, err := h.billing.GetBillingSummary(c.Request.Context(), orgID)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToBillingSummaryResponse(summary))
}

// ListPlans 套餐目录
// @Summary 套餐目录
// @Tags Billing
// @Produce json
// @Success 200 {object} dto.Response[[]dto.PlanResponse]
// @Router /api/billing/plans [get]
func (h *BillingHandler) ListPlans(c *gin.Context) {
	dto.Success(c, dto.ToPlanResponses(h.billing.Plans()))
}
