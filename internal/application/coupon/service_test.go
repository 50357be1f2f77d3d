package coupon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/coupon"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) (*Service, *memory.CouponRepository, *memory.UserCouponRepository) {
	t.Helper()
	coupons := memory.NewCouponRepository()
	userCoupons := memory.NewUserCouponRepository()
	svc := NewService(coupons, userCoupons, memory.NewKeyLock(), nil)
	return svc, coupons, userCoupons
}

func seedCoupon(t *testing.T, repo *memory.CouponRepository, remaining int) *coupon.Coupon {
	t.Helper()
	c := &coupon.Coupon{
		ID:             "c1",
		Name:           "welcome",
		Type:           coupon.FixedAmount,
		DiscountAmount: decimal.NewFromInt(2000),
		MinOrderAmount: decimal.NewFromInt(5000),
		ValidFrom:      time.Now().Add(-time.Hour),
		ValidUntil:     time.Now().Add(time.Hour),
		Remaining:      remaining,
	}
	if err := repo.Save(context.Background(), c); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	return c
}

func TestIssueOncePerUser(t *testing.T) {
	svc, coupons, _ := newTestService(t)
	seedCoupon(t, coupons, 5)
	ctx := context.Background()

	uc, err := svc.Issue(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if uc.Status != coupon.UserCouponAvailable {
		t.Errorf("expected AVAILABLE, got %s", uc.Status)
	}

	if _, err := svc.Issue(ctx, "u1", "c1"); !errors.Is(err, coupon.ErrAlreadyIssued) {
		t.Errorf("expected ErrAlreadyIssued, got %v", err)
	}

	c, _ := coupons.Get(ctx, "c1")
	if c.Remaining != 4 {
		t.Errorf("expected 4 remaining, got %d", c.Remaining)
	}
}

func TestIssueExhausted(t *testing.T) {
	svc, coupons, _ := newTestService(t)
	seedCoupon(t, coupons, 1)
	ctx := context.Background()

	if _, err := svc.Issue(ctx, "u1", "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Issue(ctx, "u2", "c1"); !errors.Is(err, coupon.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestRedeemExactlyOnceUnderContention(t *testing.T) {
	svc, coupons, _ := newTestService(t)
	seedCoupon(t, coupons, 1)
	ctx := context.Background()

	uc, err := svc.Issue(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			orderID := fmt.Sprintf("o%d", n)
			if _, err := svc.Redeem(ctx, uc.ID, orderID, decimal.NewFromInt(10000)); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one redemption, got %d", wins)
	}
}

func TestRedeemValidatesMinAmount(t *testing.T) {
	svc, coupons, _ := newTestService(t)
	seedCoupon(t, coupons, 1)
	ctx := context.Background()

	uc, err := svc.Issue(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Redeem(ctx, uc.ID, "o1", decimal.NewFromInt(4999)); !errors.Is(err, coupon.ErrMinOrderAmount) {
		t.Errorf("expected ErrMinOrderAmount, got %v", err)
	}
	// a failed validation must not consume the token
	if _, err := svc.Redeem(ctx, uc.ID, "o2", decimal.NewFromInt(10000)); err != nil {
		t.Errorf("token should still be usable, got %v", err)
	}
}

func TestRollbackRestoresToken(t *testing.T) {
	svc, coupons, userCoupons := newTestService(t)
	seedCoupon(t, coupons, 1)
	ctx := context.Background()

	uc, err := svc.Issue(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Redeem(ctx, uc.ID, "o1", decimal.NewFromInt(10000)); err != nil {
		t.Fatal(err)
	}

	if err := svc.Rollback(ctx, "o1"); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	restored, _ := userCoupons.Get(ctx, uc.ID)
	if !restored.CanUse() {
		t.Error("rollback should restore availability")
	}

	// repeat rollback and rollback of unknown orders are no-ops
	if err := svc.Rollback(ctx, "o1"); err != nil {
		t.Errorf("repeat rollback: %v", err)
	}
	if err := svc.Rollback(ctx, "never-existed"); err != nil {
		t.Errorf("unknown order rollback: %v", err)
	}
}

func TestPreviewDoesNotMutate(t *testing.T) {
	svc, coupons, userCoupons := newTestService(t)
	seedCoupon(t, coupons, 1)
	ctx := context.Background()

	uc, err := svc.Issue(ctx, "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}

	discount, err := svc.Preview(ctx, "u1", uc.ID, decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !discount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected 2000, got %s", discount)
	}

	after, _ := userCoupons.Get(ctx, uc.ID)
	if !after.CanUse() {
		t.Error("preview must not consume the token")
	}

	if _, err := svc.Preview(ctx, "intruder", uc.ID, decimal.NewFromInt(10000)); !errors.Is(err, coupon.ErrUserCouponNotFound) {
		t.Errorf("foreign user preview should fail, got %v", err)
	}
}
