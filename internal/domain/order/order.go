package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: already exists")
	ErrEmptyItems        = errors.New("order: at least one line item is required")
	ErrInvalidUser       = errors.New("order: user id is required")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrInvalidDiscount   = errors.New("order: discount must be zero or greater and not exceed the total")
)

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPaymentWaiting Status = "PAYMENT_WAITING"
	StatusProcessing     Status = "PROCESSING"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// Order is the aggregate root for the fulfillment saga. Only the saga mutates
// it after creation; COMPLETED and CANCELLED are terminal.
type Order struct {
	ID           string
	UserID       string
	Status       Status
	TotalAmount  decimal.Decimal
	Items        Items
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func New(id, userID string, items Items) (*Order, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	now := time.Now().UTC()
	return &Order{
		ID:          id,
		UserID:      userID,
		Status:      StatusPending,
		TotalAmount: items.TotalAmount(),
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ApplyDiscount reduces the total by the coupon discount computed at creation.
func (o *Order) ApplyDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() || amount.GreaterThan(o.TotalAmount) {
		return ErrInvalidDiscount
	}
	o.TotalAmount = o.TotalAmount.Sub(amount)
	o.touch()
	return nil
}

func (o *Order) WaitForPayment() error {
	if o.Status != StatusPending {
		return ErrInvalidTransition
	}
	o.Status = StatusPaymentWaiting
	o.touch()
	return nil
}

// ProcessingPayment marks the payment as in flight at the gateway. A repeated
// notice is a no-op so a redelivered in-flight event cannot fail the handler.
func (o *Order) ProcessingPayment() error {
	if o.Status == StatusProcessing {
		return nil
	}
	if o.Status != StatusPaymentWaiting {
		return ErrInvalidTransition
	}
	o.Status = StatusProcessing
	o.touch()
	return nil
}

// CompletePayment is idempotent on an already COMPLETED order so a redelivered
// completion cannot fail the handler.
func (o *Order) CompletePayment() error {
	if o.Status == StatusCompleted {
		return nil
	}
	if o.Status != StatusPaymentWaiting && o.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	o.Status = StatusCompleted
	o.touch()
	return nil
}

// Cancel moves the order to CANCELLED with a human-readable reason. A second
// cancel is a no-op; cancelling a COMPLETED order is a domain error.
func (o *Order) Cancel(reason string) error {
	if o.Status == StatusCancelled {
		return nil
	}
	if o.Status == StatusCompleted {
		return ErrInvalidTransition
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.touch()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append(Items(nil), o.Items...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
