package point

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound     = errors.New("point account not found")
	ErrInvalidPointAmount  = errors.New("point amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient point balance")
)

// Account holds a user's prepaid point balance. Mutations happen under the
// user lock held by the caller.
type Account struct {
	UserID  string
	Balance decimal.Decimal
}

func (a *Account) Charge(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidPointAmount
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (a *Account) Use(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidPointAmount
	}
	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

func (a *Account) Clone() *Account {
	c := *a
	return &c
}

type Repository interface {
	Get(ctx context.Context, userID string) (*Account, error)
	Save(ctx context.Context, a *Account) error
}
