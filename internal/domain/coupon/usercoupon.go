package coupon

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserCouponNotFound = errors.New("user coupon not found")
	ErrAlreadyIssued      = errors.New("coupon already issued to user")
	ErrAlreadyUsed        = errors.New("coupon already used")
)

type UserCouponStatus string

const (
	UserCouponAvailable UserCouponStatus = "AVAILABLE"
	UserCouponUsed      UserCouponStatus = "USED"
)

// UserCoupon is one user's issued copy of a coupon. Use is the one-time
// redemption; Rollback returns it after a failed payment.
type UserCoupon struct {
	ID       string
	UserID   string
	CouponID string
	Status   UserCouponStatus
	IssuedAt time.Time
	UsedAt   *time.Time
	OrderID  string // order that redeemed it, empty while available
}

func NewUserCoupon(userID, couponID string, now time.Time) *UserCoupon {
	return &UserCoupon{
		ID:       uuid.NewString(),
		UserID:   userID,
		CouponID: couponID,
		Status:   UserCouponAvailable,
		IssuedAt: now,
	}
}

func (uc *UserCoupon) CanUse() bool {
	return uc.Status == UserCouponAvailable
}

func (uc *UserCoupon) Use(orderID string, now time.Time) error {
	if uc.Status != UserCouponAvailable {
		return ErrAlreadyUsed
	}
	uc.Status = UserCouponUsed
	uc.UsedAt = &now
	uc.OrderID = orderID
	return nil
}

// Rollback restores availability. Returns false when there was nothing to
// undo, so replayed compensations stay quiet.
func (uc *UserCoupon) Rollback() bool {
	if uc.Status != UserCouponUsed {
		return false
	}
	uc.Status = UserCouponAvailable
	uc.UsedAt = nil
	uc.OrderID = ""
	return true
}

func (uc *UserCoupon) Clone() *UserCoupon {
	c := *uc
	if uc.UsedAt != nil {
		t := *uc.UsedAt
		c.UsedAt = &t
	}
	return &c
}
