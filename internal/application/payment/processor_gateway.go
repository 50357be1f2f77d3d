package payment

import (
	"context"
	"errors"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"
	"github.com/shopspring/decimal"
)

// GatewayProcessor submits card payments to the external gateway. When the
// gateway stays unreachable through the retry budget, the payment degrades to
// PROCESSING instead of failing: the callback or the reconciliation poller
// settles it once the gateway recovers.
type GatewayProcessor struct {
	client      payment.GatewayClient
	callbackURL string
	maxAmount   decimal.Decimal
	log         observability.Logger
}

func NewGatewayProcessor(client payment.GatewayClient, callbackURL string, maxAmount decimal.Decimal, tel observability.Observability) *GatewayProcessor {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	return &GatewayProcessor{
		client:      client,
		callbackURL: callbackURL,
		maxAmount:   maxAmount,
		log:         baseLog.With(observability.F("component", "gateway_processor")),
	}
}

func (g *GatewayProcessor) ValidateCapability(_ context.Context, _ string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return payment.ErrInvalidAmount
	}
	if g.maxAmount.IsPositive() && amount.GreaterThan(g.maxAmount) {
		return payment.ErrAmountCeiling
	}
	return nil
}

func (g *GatewayProcessor) Process(ctx context.Context, _, orderID string, amount decimal.Decimal, details payment.Details) (payment.Result, error) {
	if details.Card == nil || details.Card.Number == "" {
		return payment.Result{Status: payment.StatusFailed, Message: payment.ErrCardDetailsRequired.Error()}, nil
	}

	tx, err := g.client.Submit(ctx, payment.SubmitRequest{
		OrderRef:    orderID,
		CardType:    details.Card.Type,
		CardNo:      details.Card.Number,
		Amount:      amount,
		CallbackURL: g.callbackURL,
	})
	switch {
	case err == nil:
		return payment.Result{
			Status:         payment.StatusFromGateway(tx.Status),
			Message:        tx.Reason,
			TransactionKey: tx.TransactionKey,
		}, nil
	case errors.Is(err, payment.ErrGatewayRejected):
		return payment.Result{Status: payment.StatusFailed, Message: err.Error()}, nil
	case errors.Is(err, payment.ErrGatewayUnavailable):
		logctx.FromOr(ctx, g.log).Warn("gateway_unreachable_fallback",
			observability.F("order_id", orderID),
			observability.F("error", err.Error()),
		)
		return payment.Result{Status: payment.StatusProcessing, Message: "gateway unreachable, awaiting reconciliation"}, nil
	default:
		return payment.Result{}, err
	}
}
