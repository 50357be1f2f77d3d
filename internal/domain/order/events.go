package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// CreatedEvent starts the asynchronous half of the saga once the synchronous
// creation (items built, stock reserved, discount applied) has committed.
// ItemsAmount is the pre-discount total, which coupon validation needs.
type CreatedEvent struct {
	ID           string
	Correlation  string
	OrderID      string
	UserID       string
	UserCouponID string // empty when no coupon was selected
	ItemsAmount  decimal.Decimal
	Payment      payment.Details
	OccurredAt   time.Time
}

func (CreatedEvent) EventName() string       { return "order.created" }
func (e CreatedEvent) EventID() string       { return e.ID }
func (e CreatedEvent) CorrelationID() string { return e.Correlation }

func NewCreatedEvent(o *Order, userCouponID string, itemsAmount decimal.Decimal, details payment.Details) CreatedEvent {
	return CreatedEvent{
		ID:           uuid.NewString(),
		Correlation:  uuid.NewString(),
		OrderID:      o.ID,
		UserID:       o.UserID,
		UserCouponID: userCouponID,
		ItemsAmount:  itemsAmount,
		Payment:      details,
		OccurredAt:   time.Now().UTC(),
	}
}

type RollbackReason string

const (
	RollbackCouponUsageFailed RollbackReason = "COUPON_USAGE_FAILED"
	RollbackPaymentFailed     RollbackReason = "PAYMENT_FAILED"
)

// RollbackEvent triggers the compensation path: release stock, cancel the
// order, and run reason-specific cleanup.
type RollbackEvent struct {
	ID          string
	Correlation string
	OrderID     string
	UserID      string
	Reason      RollbackReason
	Detail      string
	OccurredAt  time.Time
}

func (RollbackEvent) EventName() string       { return "order.rollback" }
func (e RollbackEvent) EventID() string       { return e.ID }
func (e RollbackEvent) CorrelationID() string { return e.Correlation }

func NewRollbackEvent(correlationID, orderID, userID string, reason RollbackReason, detail string) RollbackEvent {
	return RollbackEvent{
		ID:          uuid.NewString(),
		Correlation: correlationID,
		OrderID:     orderID,
		UserID:      userID,
		Reason:      reason,
		Detail:      detail,
		OccurredAt:  time.Now().UTC(),
	}
}
