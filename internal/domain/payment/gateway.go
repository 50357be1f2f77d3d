package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Gateway error classes drive the retry decision: transient errors are
// retried and counted by the circuit breaker, rejections fail fast.
var (
	ErrGatewayUnavailable = errors.New("payment gateway: unavailable")
	ErrGatewayRejected    = errors.New("payment gateway: rejected")
)

type GatewayStatus string

const (
	GatewayPending GatewayStatus = "PENDING"
	GatewaySuccess GatewayStatus = "SUCCESS"
	GatewayFailed  GatewayStatus = "FAILED"
)

type SubmitRequest struct {
	OrderRef    string
	CardType    string
	CardNo      string
	Amount      decimal.Decimal
	CallbackURL string
}

type Transaction struct {
	TransactionKey string
	OrderRef       string
	Status         GatewayStatus
	Reason         string
}

// GatewayClient is the external payment gateway port.
type GatewayClient interface {
	Submit(ctx context.Context, req SubmitRequest) (Transaction, error)
	TransactionByKey(ctx context.Context, transactionKey string) (Transaction, error)
	TransactionByOrder(ctx context.Context, orderRef string) (Transaction, error)
}

// StatusFromGateway maps the gateway's reply onto the local payment status.
func StatusFromGateway(s GatewayStatus) Status {
	switch s {
	case GatewaySuccess:
		return StatusSuccess
	case GatewayFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}
