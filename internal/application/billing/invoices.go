package billing

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/internal/infrastructure/payment"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/metrics"
	"saas-tenancy-api/pkg/validate"
)

// 支付失败原因
const (
	FailureTimeout            = "timeout"
	FailureGatewayUnavailable = "gateway_unavailable"
	FailureInterrupted        = "interrupted"
)

const (
	minClaimTTL     = time.Minute
	staleClaimBatch = 100
)

// ListInvoicesInput 账单过滤条件
type ListInvoicesInput struct {
	Status entity.InvoiceStatus `json:"status" validate:"omitempty,oneof=pending processing paid failed"`
	From   *time.Time           `json:"from"`
	To     *time.Time           `json:"to"`
}

// PaymentInput 支付参数，金额与币种省略时取账单值
type PaymentInput struct {
	PaymentMethod string           `json:"paymentMethod" validate:"required,max=64"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency" validate:"omitempty,currency"`
}

// PaymentResult 支付结果，支付失败属于业务结果而非错误
type PaymentResult struct {
	Success       bool
	Invoice       *entity.Invoice
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	TransactionID string
	FailureReason string
}

func invoiceNotFound() *errors.AppError {
	return errors.New(errors.CodeInvoiceNotFound, "invoice not found")
}

// lookupInvoice 读取账单，不存在时返回 InvoiceNotFound
func (s *Service) lookupInvoice(ctx context.Context, id string) (*entity.Invoice, error) {
	invoice, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Database(err, "failed to get invoice")
	}
	if invoice == nil {
		return nil, invoiceNotFound()
	}
	return invoice, nil
}

// CreateInvoice 按订阅当前计费周期与套餐价格生成待支付账单
func (s *Service) CreateInvoice(ctx context.Context, subscriptionID string) (*entity.Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.CreateInvoice")
	defer span.End()

	if err := validate.Var("subscriptionId", subscriptionID, "required"); err != nil {
		return nil, err
	}

	sub, err := s.lookupSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sub.OrganizationID, true); err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return nil, subscriptionCancelled()
	}

	invoice, err := s.issueInvoice(ctx, sub, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit.Log(ctx, entity.AuditInvoiceCreated, "", map[string]any{
		"invoiceId":      invoice.ID,
		"subscriptionId": sub.ID,
		"organizationId": sub.OrganizationID,
		"total":          invoice.Total.StringFixed(2),
		"currency":       invoice.Currency,
	})
	return invoice, nil
}

// issueInvoice 为包含 at 的计费周期生成账单
func (s *Service) issueInvoice(ctx context.Context, sub *entity.Subscription, at time.Time) (*entity.Invoice, error) {
	plan, ok := entity.LookupPlan(sub.Plan)
	if !ok {
		return nil, errors.Newf(errors.CodeInternalError, "unknown plan %q", sub.Plan)
	}

	start, end := sub.PeriodContaining(at)
	invoice := entity.NewInvoice(sub, plan, start, end)
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, errors.Database(err, "failed to create invoice")
	}
	metrics.InvoicesTotal.WithLabelValues(string(invoice.Status)).Inc()
	return invoice, nil
}

// GetInvoice 获取账单
func (s *Service) GetInvoice(ctx context.Context, id string) (*entity.Invoice, error) {
	ctx, span := tracer.Start(ctx, "billing.GetInvoice")
	defer span.End()

	invoice, err := s.lookupInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, invoice.OrganizationID, false); err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListInvoices 分页列出组织账单
func (s *Service) ListInvoices(ctx context.Context, orgID string, in ListInvoicesInput, pagination repository.Pagination) (*repository.PagedResult[*entity.Invoice], error) {
	ctx, span := tracer.Start(ctx, "billing.ListInvoices")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.From != nil && in.To != nil && !in.From.Before(*in.To) {
		return nil, errors.InvalidParam("from must be before to")
	}
	if err := s.requireOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, orgID, false); err != nil {
		return nil, err
	}

	result, err := s.invoices.ListByOrganization(ctx, orgID, repository.InvoiceFilter{
		Status: in.Status,
		From:   in.From,
		To:     in.To,
	}, pagination)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Database(err, "failed to list invoices")
	}
	return result, nil
}

// ProcessPayment 通过支付网关结算账单
// 先将账单条件更新为 processing 占位，占位成功者才调用网关，并发支付只有一个会扣款。
// 网关拒绝或超时时账单转为 failed 并返回 Success=false，不作为错误返回。
func (s *Service) ProcessPayment(ctx context.Context, invoiceID string, in PaymentInput) (*PaymentResult, error) {
	ctx, span := tracer.Start(ctx, "billing.ProcessPayment")
	defer span.End()

	in.Currency = normalizeCurrency(in.Currency)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return nil, errors.InvalidParam("amount must be positive")
	}

	invoice, err := s.lookupInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, invoice.OrganizationID, true); err != nil {
		return nil, err
	}
	if err := payableCheck(invoice); err != nil {
		return nil, err
	}
	if in.Amount != nil && !in.Amount.Equal(invoice.Total) {
		return nil, errors.Newf(errors.CodeInvalidParam, "amount must equal invoice total %s", invoice.Total.StringFixed(2))
	}
	if in.Currency != "" && in.Currency != invoice.Currency {
		return nil, errors.Newf(errors.CodeInvalidParam, "currency must be %s", invoice.Currency)
	}

	claimed, err := s.claimInvoice(ctx, invoice, in.PaymentMethod)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	receipt := s.charge(ctx, claimed, in.PaymentMethod)

	now := time.Now().UTC()
	settled := claimed.Clone()
	settled.UpdatedAt = now
	if receipt.Approved {
		settled.Status = entity.InvoiceStatusPaid
		settled.TransactionID = receipt.TransactionID
		settled.FailureReason = ""
		settled.PaidAt = &now
	} else {
		settled.Status = entity.InvoiceStatusFailed
		settled.FailureReason = receipt.Reason
	}
	span.SetAttributes(
		attribute.String("payment.method", in.PaymentMethod),
		attribute.Int("payment.attempt", settled.PaymentAttempts),
		attribute.Bool("payment.approved", receipt.Approved),
	)

	// 网关已完成扣款，结果必须落库，不随请求取消
	if err := s.invoices.Transition(context.WithoutCancel(ctx), settled, entity.InvoiceStatusProcessing); err != nil {
		logger.Error(ctx, "failed to record payment outcome", err,
			"invoice_id", settled.ID,
			"idempotency_key", settled.IdempotencyKey(),
			"transaction_id", receipt.TransactionID,
		)
		span.RecordError(err)
		return nil, errors.Database(err, "failed to record payment")
	}

	status := "failed"
	action := entity.AuditPaymentFailed
	if receipt.Approved {
		status = "succeeded"
		action = entity.AuditPaymentSucceeded
	}
	metrics.PaymentsTotal.WithLabelValues(in.PaymentMethod, status).Inc()
	metrics.InvoicesTotal.WithLabelValues(string(settled.Status)).Inc()

	s.audit.Log(ctx, action, "", map[string]any{
		"invoiceId":      settled.ID,
		"organizationId": settled.OrganizationID,
		"paymentMethod":  in.PaymentMethod,
		"attempt":        settled.PaymentAttempts,
		"amount":         settled.Total.StringFixed(2),
		"currency":       settled.Currency,
		"reason":         receipt.Reason,
	})

	return &PaymentResult{
		Success:       receipt.Approved,
		Invoice:       settled,
		Amount:        settled.Total,
		Currency:      settled.Currency,
		PaymentMethod: in.PaymentMethod,
		TransactionID: receipt.TransactionID,
		FailureReason: receipt.Reason,
	}, nil
}

func payableCheck(invoice *entity.Invoice) error {
	switch {
	case invoice.IsPaid():
		return errors.New(errors.CodeInvoiceAlreadyPaid, "invoice is already paid")
	case invoice.IsProcessing():
		return errors.Conflict("payment is already in progress")
	case !invoice.Payable():
		return errors.Conflict("invoice is not payable")
	}
	return nil
}

// claimInvoice 条件更新为 processing，失败说明已被其他请求占用或已支付
// 上次失败结果不确定（超时、网关不可用、中断）时沿用原幂等键，网关可回放原结果。
func (s *Service) claimInvoice(ctx context.Context, invoice *entity.Invoice, method string) (*entity.Invoice, error) {
	claimed := invoice.Clone()
	claimed.Status = entity.InvoiceStatusProcessing
	claimed.PaymentMethod = method
	claimed.UpdatedAt = time.Now().UTC()
	if !(invoice.Status == entity.InvoiceStatusFailed && ambiguousFailure(invoice.FailureReason)) {
		claimed.PaymentAttempts++
	}
	claimed.FailureReason = ""

	err := s.invoices.Transition(ctx, claimed, invoice.Status)
	if err == nil {
		return claimed, nil
	}
	if !stderrors.Is(err, repository.ErrStaleState) {
		return nil, errors.Database(err, "failed to claim invoice")
	}

	current, lerr := s.lookupInvoice(ctx, invoice.ID)
	if lerr != nil {
		return nil, lerr
	}
	if cerr := payableCheck(current); cerr != nil {
		return nil, cerr
	}
	return nil, errors.Conflict("invoice was modified concurrently")
}

func ambiguousFailure(reason string) bool {
	switch reason {
	case FailureTimeout, FailureGatewayUnavailable, FailureInterrupted:
		return true
	}
	return false
}

// ReleaseStalePayments 将长时间停留在 processing 的账单标记为 interrupted 失败
// 进程在扣款与落库之间退出时会留下此类账单，重试沿用原幂等键。
func (s *Service) ReleaseStalePayments(ctx context.Context, now time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "billing.ReleaseStalePayments")
	defer span.End()

	stale, err := s.invoices.ListProcessingBefore(ctx, now.Add(-s.claimTTL()), staleClaimBatch)
	if err != nil {
		return 0, errors.Database(err, "failed to list stale payments")
	}

	released := 0
	for _, invoice := range stale {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		failed := invoice.Clone()
		failed.Status = entity.InvoiceStatusFailed
		failed.FailureReason = FailureInterrupted
		failed.UpdatedAt = now
		if err := s.invoices.Transition(ctx, failed, entity.InvoiceStatusProcessing); err != nil {
			if !stderrors.Is(err, repository.ErrStaleState) {
				logger.Error(ctx, "failed to release stale payment", err, "invoice_id", invoice.ID)
			}
			continue
		}
		released++
		s.audit.Log(ctx, entity.AuditPaymentFailed, "", map[string]any{
			"invoiceId":      failed.ID,
			"organizationId": failed.OrganizationID,
			"attempt":        failed.PaymentAttempts,
			"reason":         FailureInterrupted,
		})
	}
	return released, nil
}

// claimTTL processing 占位的最长持有时间
func (s *Service) claimTTL() time.Duration {
	ttl := 2 * s.cfg.PaymentTimeout
	if ttl < minClaimTTL {
		ttl = minClaimTTL
	}
	return ttl
}

// charge 调用支付网关，调用时长受 payment_timeout 约束
func (s *Service) charge(ctx context.Context, invoice *entity.Invoice, method string) *payment.Receipt {
	if s.cfg.PaymentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PaymentTimeout)
		defer cancel()
	}

	start := time.Now()
	receipt, err := s.gateway.Charge(ctx, payment.Charge{
		InvoiceID:      invoice.ID,
		IdempotencyKey: invoice.IdempotencyKey(),
		Method:         method,
		Amount:         invoice.Total,
		Currency:       invoice.Currency,
	})
	metrics.PaymentDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err == nil {
		return receipt
	}
	reason := FailureGatewayUnavailable
	if stderrors.Is(err, context.DeadlineExceeded) {
		reason = FailureTimeout
	}
	logger.Warn(ctx, "payment gateway call failed",
		"invoice_id", invoice.ID,
		"reason", reason,
		"error", err.Error(),
	)
	return &payment.Receipt{Approved: false, Reason: reason}
}
