package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/coupon"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/lock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"
	"github.com/shopspring/decimal"
)

// Service manages coupon issuance and the one-time redemption token. Redeem
// serializes on the user coupon id so two orders racing for the same token
// cannot both win.
type Service struct {
	coupons     coupon.Repository
	userCoupons coupon.UserCouponRepository
	locks       lock.Keyed
	log         observability.Logger
}

func NewService(
	coupons coupon.Repository,
	userCoupons coupon.UserCouponRepository,
	locks lock.Keyed,
	tel observability.Observability,
) *Service {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	return &Service{
		coupons:     coupons,
		userCoupons: userCoupons,
		locks:       locks,
		log:         baseLog.With(observability.F("component", "coupon_service")),
	}
}

// Issue hands one copy of the coupon to the user, decrementing the issuance
// stock. A user gets at most one copy per coupon.
func (s *Service) Issue(ctx context.Context, userID, couponID string) (*coupon.UserCoupon, error) {
	release := s.locks.Lock("coupon:" + couponID)
	defer release()

	if _, err := s.userCoupons.FindByUserAndCoupon(ctx, userID, couponID); err == nil {
		return nil, coupon.ErrAlreadyIssued
	} else if !errors.Is(err, coupon.ErrUserCouponNotFound) {
		return nil, fmt.Errorf("coupon: issuance lookup: %w", err)
	}

	c, err := s.coupons.Get(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if err := c.TakeOne(); err != nil {
		return nil, err
	}
	if err := s.coupons.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("coupon: save: %w", err)
	}

	uc := coupon.NewUserCoupon(userID, couponID, time.Now().UTC())
	if err := s.userCoupons.Insert(ctx, uc); err != nil {
		return nil, fmt.Errorf("coupon: insert user coupon: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("coupon_issued",
		observability.F("user_id", userID),
		observability.F("coupon_id", couponID),
		observability.F("user_coupon_id", uc.ID),
	)
	return uc, nil
}

// Preview computes the discount the user coupon would grant for the given
// pre-discount amount. It validates ownership, availability, the validity
// window, and the minimum order amount, but mutates nothing.
func (s *Service) Preview(ctx context.Context, userID, userCouponID string, amount decimal.Decimal) (decimal.Decimal, error) {
	uc, err := s.userCoupons.Get(ctx, userCouponID)
	if err != nil {
		return decimal.Zero, err
	}
	if uc.UserID != userID {
		return decimal.Zero, coupon.ErrUserCouponNotFound
	}
	if !uc.CanUse() {
		return decimal.Zero, coupon.ErrAlreadyUsed
	}

	c, err := s.coupons.Get(ctx, uc.CouponID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.DiscountFor(amount, time.Now().UTC())
}

// Redeem consumes the one-time token for an order and returns the granted
// discount. The user coupon lock makes the winner-takes-all race explicit: the
// loser observes USED and fails.
func (s *Service) Redeem(ctx context.Context, userCouponID, orderID string, amount decimal.Decimal) (decimal.Decimal, error) {
	release := s.locks.Lock("user_coupon:" + userCouponID)
	defer release()

	uc, err := s.userCoupons.Get(ctx, userCouponID)
	if err != nil {
		return decimal.Zero, err
	}
	if !uc.CanUse() {
		return decimal.Zero, coupon.ErrAlreadyUsed
	}

	c, err := s.coupons.Get(ctx, uc.CouponID)
	if err != nil {
		return decimal.Zero, err
	}
	now := time.Now().UTC()
	discount, err := c.DiscountFor(amount, now)
	if err != nil {
		return decimal.Zero, err
	}

	if err := uc.Use(orderID, now); err != nil {
		return decimal.Zero, err
	}
	if err := s.userCoupons.Update(ctx, uc); err != nil {
		return decimal.Zero, fmt.Errorf("coupon: update user coupon: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("coupon_redeemed",
		observability.F("user_coupon_id", userCouponID),
		observability.F("order_id", orderID),
		observability.F("discount", discount.String()),
	)
	return discount, nil
}

// Rollback returns the order's coupon to AVAILABLE after a failed payment.
// Orders without a redeemed coupon, and coupons already rolled back, are quiet
// no-ops.
func (s *Service) Rollback(ctx context.Context, orderID string) error {
	uc, err := s.userCoupons.FindByOrderID(ctx, orderID)
	if errors.Is(err, coupon.ErrUserCouponNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("coupon: rollback lookup: %w", err)
	}

	release := s.locks.Lock("user_coupon:" + uc.ID)
	defer release()

	uc, err = s.userCoupons.Get(ctx, uc.ID)
	if err != nil {
		return err
	}
	if !uc.Rollback() {
		return nil
	}
	if err := s.userCoupons.Update(ctx, uc); err != nil {
		return fmt.Errorf("coupon: update user coupon: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("coupon_rolled_back",
		observability.F("user_coupon_id", uc.ID),
		observability.F("order_id", orderID),
	)
	return nil
}
