package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("payment: not found")
	ErrInvalidAmount       = errors.New("payment: amount must be greater than zero")
	ErrAmountCeiling       = errors.New("payment: single transaction ceiling exceeded")
	ErrCardDetailsRequired = errors.New("payment: card details are required")
	ErrInsufficientBalance = errors.New("payment: insufficient balance")
	ErrUnsupportedMethod   = errors.New("payment: unsupported method")
)

type Method string

const (
	MethodPoint Method = "POINT"
	MethodCard  Method = "CARD"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Payment is the per-order payment record. SUCCESS and FAILED are terminal;
// re-marking a terminal status is a no-op so the callback and the
// reconciliation poller can race safely.
type Payment struct {
	ID             string
	OrderID        string
	UserID         string
	CorrelationID  string
	Method         Method
	Amount         decimal.Decimal
	Status         Status
	TransactionKey string
	FailureReason  string
	NeedsReview    bool
	CreatedAt      time.Time
	ProcessedAt    time.Time
}

func New(id, orderID, userID, correlationID string, method Method, amount decimal.Decimal, transactionKey string, status Status) (*Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Payment{
		ID:             id,
		OrderID:        orderID,
		UserID:         userID,
		CorrelationID:  correlationID,
		Method:         method,
		Amount:         amount,
		Status:         status,
		TransactionKey: transactionKey,
		CreatedAt:      now,
		ProcessedAt:    now,
	}, nil
}

func (p *Payment) MarkSuccess(transactionKey string) {
	if p.Status == StatusSuccess {
		return
	}
	p.Status = StatusSuccess
	p.TransactionKey = transactionKey
	p.ProcessedAt = time.Now().UTC()
}

// MarkProcessing parks the payment while the gateway holds the authoritative
// status. Terminal payments are left untouched.
func (p *Payment) MarkProcessing(transactionKey string) {
	if p.Settled() {
		return
	}
	p.Status = StatusProcessing
	if transactionKey != "" {
		p.TransactionKey = transactionKey
	}
}

func (p *Payment) MarkFailed(reason string) {
	if p.Status == StatusFailed {
		return
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.ProcessedAt = time.Now().UTC()
}

// FlagForReview marks a payment stuck past the urgency threshold while the
// gateway is unreachable.
func (p *Payment) FlagForReview() {
	p.NeedsReview = true
}

// Settled reports whether the payment reached a terminal status.
func (p *Payment) Settled() bool {
	return p.Status == StatusSuccess || p.Status == StatusFailed
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
