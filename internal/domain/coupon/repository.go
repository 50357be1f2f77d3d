package coupon

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*Coupon, error)
	Save(ctx context.Context, c *Coupon) error
}

type UserCouponRepository interface {
	Insert(ctx context.Context, uc *UserCoupon) error
	Get(ctx context.Context, id string) (*UserCoupon, error)
	Update(ctx context.Context, uc *UserCoupon) error
	// FindByUserAndCoupon backs the one-per-user issuance rule.
	FindByUserAndCoupon(ctx context.Context, userID, couponID string) (*UserCoupon, error)
	FindByOrderID(ctx context.Context, orderID string) (*UserCoupon, error)
}
