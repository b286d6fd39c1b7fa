package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGateway_Charge(t *testing.T) {
	gw := NewStubGateway(0)
	amount := decimal.NewFromInt(99)

	tests := []struct {
		name     string
		method   string
		amount   decimal.Decimal
		approved bool
		reason   string
	}{
		{name: "card approved", method: "card", amount: amount, approved: true},
		{name: "declining method", method: "fail", amount: amount, reason: "card_declined"},
		{name: "method is case insensitive", method: "DECLINED", amount: amount, reason: "card_declined"},
		{name: "zero amount", method: "card", amount: decimal.Zero, reason: "invalid_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt, err := gw.Charge(context.Background(), Charge{InvoiceID: "inv", Method: tt.method, Amount: tt.amount, Currency: "USD"})
			require.NoError(t, err)
			assert.Equal(t, tt.approved, receipt.Approved)
			assert.Equal(t, tt.reason, receipt.Reason)
			if tt.approved {
				assert.NotEmpty(t, receipt.TransactionID)
			}
		})
	}
}

func TestStubGateway_RespectsDeadline(t *testing.T) {
	gw := NewStubGateway(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := gw.Charge(ctx, Charge{Method: "card", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStubGateway_IdempotencyKey(t *testing.T) {
	gw := NewStubGateway(0)
	charge := Charge{InvoiceID: "inv", IdempotencyKey: "inv-1", Method: "card", Amount: decimal.NewFromInt(29), Currency: "USD"}

	first, err := gw.Charge(context.Background(), charge)
	require.NoError(t, err)
	require.True(t, first.Approved)

	replay, err := gw.Charge(context.Background(), charge)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, replay.TransactionID)

	charge.IdempotencyKey = "inv-2"
	next, err := gw.Charge(context.Background(), charge)
	require.NoError(t, err)
	assert.NotEqual(t, first.TransactionID, next.TransactionID)
}
