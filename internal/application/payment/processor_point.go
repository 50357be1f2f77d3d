package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/lock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/point"
	"github.com/shopspring/decimal"
)

// PointProcessor settles a payment from the user's prepaid point balance.
// Settlement is synchronous: the debit either commits or the payment fails on
// the spot, so this path never produces a PROCESSING payment.
type PointProcessor struct {
	accounts point.Repository
	locks    lock.Keyed
}

func NewPointProcessor(accounts point.Repository, locks lock.Keyed) *PointProcessor {
	return &PointProcessor{accounts: accounts, locks: locks}
}

func (p *PointProcessor) ValidateCapability(ctx context.Context, userID string, amount decimal.Decimal) error {
	account, err := p.accounts.Get(ctx, userID)
	if errors.Is(err, point.ErrAccountNotFound) {
		return payment.ErrInsufficientBalance
	}
	if err != nil {
		return fmt.Errorf("point processor: load account: %w", err)
	}
	if account.Balance.LessThan(amount) {
		return payment.ErrInsufficientBalance
	}
	return nil
}

func (p *PointProcessor) Process(ctx context.Context, userID, orderID string, amount decimal.Decimal, _ payment.Details) (payment.Result, error) {
	release := p.locks.Lock("point:" + userID)
	defer release()

	account, err := p.accounts.Get(ctx, userID)
	if errors.Is(err, point.ErrAccountNotFound) {
		return payment.Result{Status: payment.StatusFailed, Message: payment.ErrInsufficientBalance.Error()}, nil
	}
	if err != nil {
		return payment.Result{}, fmt.Errorf("point processor: load account: %w", err)
	}

	if err := account.Use(amount); err != nil {
		if errors.Is(err, point.ErrInsufficientBalance) {
			return payment.Result{Status: payment.StatusFailed, Message: payment.ErrInsufficientBalance.Error()}, nil
		}
		return payment.Result{}, err
	}
	if err := p.accounts.Save(ctx, account); err != nil {
		return payment.Result{}, fmt.Errorf("point processor: save account: %w", err)
	}

	return payment.Result{
		Status:         payment.StatusSuccess,
		TransactionKey: "POINT_" + userID,
	}, nil
}
