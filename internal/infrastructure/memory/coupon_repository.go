package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/coupon"
)

type CouponRepository struct {
	mu      sync.RWMutex
	coupons map[string]*coupon.Coupon
}

func NewCouponRepository() *CouponRepository {
	return &CouponRepository{coupons: make(map[string]*coupon.Coupon)}
}

func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CouponRepository) Save(ctx context.Context, c *coupon.Coupon) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return fmt.Errorf("coupon repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.coupons[c.ID] = c.Clone()
	return nil
}

type UserCouponRepository struct {
	mu   sync.RWMutex
	rows map[string]*coupon.UserCoupon
}

func NewUserCouponRepository() *UserCouponRepository {
	return &UserCouponRepository{rows: make(map[string]*coupon.UserCoupon)}
}

func (r *UserCouponRepository) Insert(ctx context.Context, uc *coupon.UserCoupon) error {
	_ = ctx
	if uc == nil || uc.ID == "" {
		return fmt.Errorf("user coupon repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[uc.ID]; exists {
		return coupon.ErrAlreadyIssued
	}
	r.rows[uc.ID] = uc.Clone()
	return nil
}

func (r *UserCouponRepository) Get(ctx context.Context, id string) (*coupon.UserCoupon, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	uc, ok := r.rows[id]
	if !ok {
		return nil, coupon.ErrUserCouponNotFound
	}
	return uc.Clone(), nil
}

func (r *UserCouponRepository) Update(ctx context.Context, uc *coupon.UserCoupon) error {
	_ = ctx
	if uc == nil || uc.ID == "" {
		return fmt.Errorf("user coupon repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[uc.ID]; !exists {
		return coupon.ErrUserCouponNotFound
	}
	r.rows[uc.ID] = uc.Clone()
	return nil
}

func (r *UserCouponRepository) FindByUserAndCoupon(ctx context.Context, userID, couponID string) (*coupon.UserCoupon, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, uc := range r.rows {
		if uc.UserID == userID && uc.CouponID == couponID {
			return uc.Clone(), nil
		}
	}
	return nil, coupon.ErrUserCouponNotFound
}

func (r *UserCouponRepository) FindByOrderID(ctx context.Context, orderID string) (*coupon.UserCoupon, error) {
	_ = ctx
	if orderID == "" {
		return nil, coupon.ErrUserCouponNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, uc := range r.rows {
		if uc.OrderID == orderID {
			return uc.Clone(), nil
		}
	}
	return nil, coupon.ErrUserCouponNotFound
}
