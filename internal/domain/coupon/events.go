package coupon

import (
	"time"

	"github.com/google/uuid"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// ProcessedEvent reports that the coupon stage of the saga finished, with or
// without an actual coupon, and hands the payment stage what it needs.
type ProcessedEvent struct {
	ID           string
	Correlation  string
	OrderID      string
	UserID       string
	Applied      bool
	UserCouponID string
	Amount       decimal.Decimal // final amount to charge
	Payment      payment.Details
	OccurredAt   time.Time
}

func (ProcessedEvent) EventName() string       { return "coupon.processed" }
func (e ProcessedEvent) EventID() string       { return e.ID }
func (e ProcessedEvent) CorrelationID() string { return e.Correlation }

func NewProcessedEvent(correlationID, orderID, userID string, applied bool, userCouponID string, amount decimal.Decimal, details payment.Details) ProcessedEvent {
	return ProcessedEvent{
		ID:           uuid.NewString(),
		Correlation:  correlationID,
		OrderID:      orderID,
		UserID:       userID,
		Applied:      applied,
		UserCouponID: userCouponID,
		Amount:       amount,
		Payment:      details,
		OccurredAt:   time.Now().UTC(),
	}
}
