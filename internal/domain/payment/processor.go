package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// CardDetails is what the gateway needs for a CARD payment.
type CardDetails struct {
	Type   string
	Number string
}

// Details selects the payment strategy for an order and carries the
// method-specific inputs.
type Details struct {
	Method Method
	Card   *CardDetails
}

// Result is the outcome of a processor attempt. A PROCESSING status means the
// gateway accepted the request and the authoritative status arrives later via
// callback or the reconciliation poller.
type Result struct {
	Status         Status
	Message        string
	TransactionKey string
}

// Processor is the payment strategy port. Exactly two implementations exist:
// the balance-debit (point) processor and the external-gateway processor.
type Processor interface {
	ValidateCapability(ctx context.Context, userID string, amount decimal.Decimal) error
	Process(ctx context.Context, userID, orderID string, amount decimal.Decimal, details Details) (Result, error)
}
