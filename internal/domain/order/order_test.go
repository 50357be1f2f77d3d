package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	item, err := NewItem("p1", 2, decimal.NewFromInt(5000))
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	o, err := New("o1", "u1", Items{item})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNewOrderValidation(t *testing.T) {
	item, _ := NewItem("p1", 1, decimal.NewFromInt(100))

	if _, err := New("o1", "", Items{item}); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("expected ErrInvalidUser, got %v", err)
	}
	if _, err := New("o1", "u1", nil); !errors.Is(err, ErrEmptyItems) {
		t.Errorf("expected ErrEmptyItems, got %v", err)
	}
}

func TestApplyDiscountBounds(t *testing.T) {
	o := newTestOrder(t)

	if err := o.ApplyDiscount(decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidDiscount) {
		t.Errorf("negative discount should fail, got %v", err)
	}
	if err := o.ApplyDiscount(decimal.NewFromInt(10001)); !errors.Is(err, ErrInvalidDiscount) {
		t.Errorf("discount above total should fail, got %v", err)
	}
	if err := o.ApplyDiscount(decimal.NewFromInt(3000)); err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}
	if !o.TotalAmount.Equal(decimal.NewFromInt(7000)) {
		t.Errorf("expected 7000, got %s", o.TotalAmount)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	o := newTestOrder(t)

	if err := o.WaitForPayment(); err != nil {
		t.Fatalf("WaitForPayment: %v", err)
	}
	if err := o.ProcessingPayment(); err != nil {
		t.Fatalf("ProcessingPayment: %v", err)
	}
	if err := o.CompletePayment(); err != nil {
		t.Fatalf("CompletePayment: %v", err)
	}
	if o.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", o.Status)
	}
	// redelivered completion is a no-op
	if err := o.CompletePayment(); err != nil {
		t.Errorf("repeat CompletePayment should be nil, got %v", err)
	}
}

func TestCompleteFromPaymentWaiting(t *testing.T) {
	o := newTestOrder(t)
	if err := o.WaitForPayment(); err != nil {
		t.Fatalf("WaitForPayment: %v", err)
	}
	if err := o.CompletePayment(); err != nil {
		t.Fatalf("CompletePayment from PAYMENT_WAITING: %v", err)
	}
}

func TestCompleteFromPendingFails(t *testing.T) {
	o := newTestOrder(t)
	if err := o.CompletePayment(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelRules(t *testing.T) {
	o := newTestOrder(t)
	if err := o.WaitForPayment(); err != nil {
		t.Fatal(err)
	}

	if err := o.Cancel("PAYMENT_FAILED"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if o.Status != StatusCancelled || o.CancelReason != "PAYMENT_FAILED" {
		t.Errorf("unexpected state %s / %s", o.Status, o.CancelReason)
	}
	// repeat cancel is a no-op and keeps the original reason
	if err := o.Cancel("OTHER"); err != nil {
		t.Errorf("repeat Cancel should be nil, got %v", err)
	}
	if o.CancelReason != "PAYMENT_FAILED" {
		t.Errorf("reason overwritten on repeat cancel: %s", o.CancelReason)
	}
}

func TestCancelCompletedFails(t *testing.T) {
	o := newTestOrder(t)
	_ = o.WaitForPayment()
	_ = o.CompletePayment()

	if err := o.Cancel("late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancelling a COMPLETED order should fail, got %v", err)
	}
}

func TestItemsHelpers(t *testing.T) {
	i1, _ := NewItem("b", 2, decimal.NewFromInt(100))
	i2, _ := NewItem("a", 3, decimal.NewFromInt(50))
	i3, _ := NewItem("b", 1, decimal.NewFromInt(100))
	items := Items{i1, i2, i3}

	if !items.TotalAmount().Equal(decimal.NewFromInt(450)) {
		t.Errorf("expected total 450, got %s", items.TotalAmount())
	}

	qty := items.QuantityByProduct()
	if qty["b"] != 3 || qty["a"] != 3 {
		t.Errorf("unexpected quantities: %v", qty)
	}

	ids := items.ProductIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("expected ascending distinct ids, got %v", ids)
	}
}
