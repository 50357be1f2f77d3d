package coupon

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("coupon not found")
	ErrExhausted       = errors.New("coupon stock exhausted")
	ErrNotYetValid     = errors.New("coupon not yet valid")
	ErrExpired         = errors.New("coupon expired")
	ErrMinOrderAmount  = errors.New("order amount below coupon minimum")
	ErrInvalidDiscount = errors.New("invalid coupon discount definition")
)

type DiscountType string

const (
	FixedAmount DiscountType = "FIXED_AMOUNT"
	FixedRate   DiscountType = "FIXED_RATE"
)

type Coupon struct {
	ID             string
	Name           string
	Type           DiscountType
	DiscountAmount decimal.Decimal // FIXED_AMOUNT
	DiscountRate   decimal.Decimal // FIXED_RATE, percent
	MaxDiscount    decimal.Decimal // cap for FIXED_RATE, zero means uncapped
	MinOrderAmount decimal.Decimal
	ValidFrom      time.Time
	ValidUntil     time.Time
	Remaining      int
}

// DiscountFor validates the coupon against the pre-discount order amount and
// returns the discount it grants. Rate discounts are rounded half up to two
// decimal places and never exceed the cap or the order amount.
func (c *Coupon) DiscountFor(amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if now.Before(c.ValidFrom) {
		return decimal.Zero, ErrNotYetValid
	}
	if now.After(c.ValidUntil) {
		return decimal.Zero, ErrExpired
	}
	if amount.LessThan(c.MinOrderAmount) {
		return decimal.Zero, ErrMinOrderAmount
	}

	var discount decimal.Decimal
	switch c.Type {
	case FixedAmount:
		discount = c.DiscountAmount
	case FixedRate:
		discount = amount.Mul(c.DiscountRate).DivRound(decimal.NewFromInt(100), 2)
		if c.MaxDiscount.IsPositive() && discount.GreaterThan(c.MaxDiscount) {
			discount = c.MaxDiscount
		}
	default:
		return decimal.Zero, ErrInvalidDiscount
	}

	if discount.GreaterThan(amount) {
		discount = amount
	}
	if discount.IsNegative() {
		return decimal.Zero, ErrInvalidDiscount
	}
	return discount, nil
}

// TakeOne decrements the issuance stock.
func (c *Coupon) TakeOne() error {
	if c.Remaining <= 0 {
		return ErrExhausted
	}
	c.Remaining--
	return nil
}

func (c *Coupon) Clone() *Coupon {
	cp := *c
	return &cp
}
