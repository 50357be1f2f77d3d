package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// eventIDFor derives a stable event id from the payment record, so the
// callback, the poller, and a republish after a lost publish all emit the
// same identity and the consumer guard can deduplicate them.
func eventIDFor(eventName, paymentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(eventName+":"+paymentID)).String()
}

// ProcessingEvent reports that a gateway payment is in flight: submitted (or
// parked while the gateway is unreachable) with the authoritative status
// still to come via callback or the reconciliation poller.
type ProcessingEvent struct {
	ID             string
	Correlation    string
	OrderID        string
	UserID         string
	PaymentID      string
	TransactionKey string
	Method         Method
	OccurredAt     time.Time
}

func (ProcessingEvent) EventName() string       { return "payment.processing" }
func (e ProcessingEvent) EventID() string       { return e.ID }
func (e ProcessingEvent) CorrelationID() string { return e.Correlation }

func NewProcessingEvent(p *Payment) ProcessingEvent {
	return ProcessingEvent{
		ID:             eventIDFor("payment.processing", p.ID),
		Correlation:    p.CorrelationID,
		OrderID:        p.OrderID,
		UserID:         p.UserID,
		PaymentID:      p.ID,
		TransactionKey: p.TransactionKey,
		Method:         p.Method,
		OccurredAt:     time.Now().UTC(),
	}
}

// CompletedEvent is emitted once a payment reaches SUCCESS, either inline
// (point) or via the gateway callback / reconciliation poller.
type CompletedEvent struct {
	ID             string
	Correlation    string
	OrderID        string
	UserID         string
	PaymentID      string
	TransactionKey string
	Method         Method
	Amount         decimal.Decimal
	OccurredAt     time.Time
}

func (CompletedEvent) EventName() string       { return "payment.completed" }
func (e CompletedEvent) EventID() string       { return e.ID }
func (e CompletedEvent) CorrelationID() string { return e.Correlation }

func NewCompletedEvent(p *Payment) CompletedEvent {
	return CompletedEvent{
		ID:             eventIDFor("payment.completed", p.ID),
		Correlation:    p.CorrelationID,
		OrderID:        p.OrderID,
		UserID:         p.UserID,
		PaymentID:      p.ID,
		TransactionKey: p.TransactionKey,
		Method:         p.Method,
		Amount:         p.Amount,
		OccurredAt:     time.Now().UTC(),
	}
}

// FailedEvent is emitted on a terminal payment failure and triggers the
// compensation path (stock release, order cancellation, coupon rollback).
type FailedEvent struct {
	ID          string
	Correlation string
	OrderID     string
	UserID      string
	Method      Method
	Amount      decimal.Decimal
	Reason      string
	OccurredAt  time.Time
}

func (FailedEvent) EventName() string       { return "payment.failed" }
func (e FailedEvent) EventID() string       { return e.ID }
func (e FailedEvent) CorrelationID() string { return e.Correlation }

func NewFailedEvent(correlationID, orderID, userID string, method Method, amount decimal.Decimal, reason string) FailedEvent {
	return FailedEvent{
		ID:          uuid.NewString(),
		Correlation: correlationID,
		OrderID:     orderID,
		UserID:      userID,
		Method:      method,
		Amount:      amount,
		Reason:      reason,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewFailedEventFromPayment derives the failure event from a persisted record,
// used by the callback and reconciliation paths. Unlike the bare NewFailedEvent
// it carries the record-derived event id, so racing settlement paths dedupe.
func NewFailedEventFromPayment(p *Payment) FailedEvent {
	e := NewFailedEvent(p.CorrelationID, p.OrderID, p.UserID, p.Method, p.Amount, p.FailureReason)
	e.ID = eventIDFor("payment.failed", p.ID)
	return e
}
