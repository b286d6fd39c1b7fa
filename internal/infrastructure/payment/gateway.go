// Package payment 提供支付网关实现
package payment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("payment")

// Charge 扣款请求
// IdempotencyKey 相同时网关返回首次扣款结果，不会重复扣款。
type Charge struct {
	InvoiceID      string
	IdempotencyKey string
	Method         string
	Amount         decimal.Decimal
	Currency       string
}

// Receipt 扣款结果
type Receipt struct {
	Approved      bool
	TransactionID string
	Reason        string
}

// Gateway 支付网关
// 业务拒绝通过 Receipt.Approved=false 返回，error 仅表示网关不可用或超时。
type Gateway interface {
	Charge(ctx context.Context, charge Charge) (*Receipt, error)
}

// declinedMethods 模拟网关中必然被拒的支付方式
var declinedMethods = map[string]string{
	"fail":              "card_declined",
	"declined":          "card_declined",
	"insufficient_fund": "insufficient_funds",
}

// StubGateway 开发与测试用支付网关
type StubGateway struct {
	latency time.Duration

	mu       sync.Mutex
	receipts map[string]*Receipt
}

// NewStubGateway 创建模拟网关，latency 用于模拟网络耗时
func NewStubGateway(latency time.Duration) *StubGateway {
	return &StubGateway{latency: latency, receipts: make(map[string]*Receipt)}
}

// Charge 按支付方式决定结果，等待期间遵循 ctx 取消
func (g *StubGateway) Charge(ctx context.Context, charge Charge) (*Receipt, error) {
	_, span := tracer.Start(ctx, "payment.StubGateway.Charge",
		trace.WithAttributes(
			attribute.String("invoice_id", charge.InvoiceID),
			attribute.String("payment.method", charge.Method),
		))
	defer span.End()

	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if charge.IdempotencyKey == "" {
		return decide(charge), nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if receipt, ok := g.receipts[charge.IdempotencyKey]; ok {
		span.SetAttributes(attribute.Bool("payment.replayed", true))
		cp := *receipt
		return &cp, nil
	}
	receipt := decide(charge)
	g.receipts[charge.IdempotencyKey] = receipt
	cp := *receipt
	return &cp, nil
}

func decide(charge Charge) *Receipt {
	if reason, ok := declinedMethods[strings.ToLower(charge.Method)]; ok {
		return &Receipt{Approved: false, Reason: reason}
	}
	if !charge.Amount.IsPositive() {
		return &Receipt{Approved: false, Reason: "invalid_amount"}
	}
	return &Receipt{
		Approved:      true,
		TransactionID: "txn_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}
