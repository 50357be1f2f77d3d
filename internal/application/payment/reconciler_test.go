package payment

import (
	"context"
	"testing"
	"time"

	"github.com/minsoo-kang/commerce-fulfillment/internal/config"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/shopspring/decimal"
)

func newReconciler(f *fixture) *Reconciler {
	cfg := config.PollerConfig{
		Interval:    time.Second,
		MinAge:      time.Minute,
		MaxAge:      10 * time.Minute,
		BatchSize:   50,
		ReviewAfter: 5 * time.Minute,
	}
	return NewReconciler(f.svc, f.payments, f.gateway, cfg, nil)
}

func insertUnsettled(t *testing.T, f *fixture, orderID string, method payment.Method, status payment.Status, age time.Duration) *payment.Payment {
	t.Helper()
	p, err := payment.New("pay-"+orderID, orderID, "u1", "corr-"+orderID, method, decimal.NewFromInt(5000), "", status)
	if err != nil {
		t.Fatal(err)
	}
	p.CreatedAt = time.Now().UTC().Add(-age)
	if err := f.payments.Insert(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestScanOnceSettlesFromGateway(t *testing.T) {
	f := newFixture(t)
	r := newReconciler(f)
	ctx := context.Background()

	insertUnsettled(t, f, "o1", payment.MethodCard, payment.StatusProcessing, 2*time.Minute)
	f.gateway.lookupTx = payment.Transaction{
		TransactionKey: "tx-1",
		OrderRef:       "o1",
		Status:         payment.GatewaySuccess,
	}

	r.ScanOnce(ctx)

	p, _ := f.payments.GetByOrderID(ctx, "o1")
	if p.Status != payment.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", p.Status)
	}
	if p.TransactionKey != "tx-1" {
		t.Errorf("expected learned key tx-1, got %q", p.TransactionKey)
	}
	if _, ok := f.bus.last(t).(payment.CompletedEvent); !ok {
		t.Fatalf("expected CompletedEvent, got %T", f.bus.last(t))
	}
}

func TestScanOnceSettlesGatewayFailure(t *testing.T) {
	f := newFixture(t)
	r := newReconciler(f)
	ctx := context.Background()

	insertUnsettled(t, f, "o1", payment.MethodCard, payment.StatusProcessing, 2*time.Minute)
	f.gateway.lookupTx = payment.Transaction{OrderRef: "o1", Status: payment.GatewayFailed, Reason: "card declined"}

	r.ScanOnce(ctx)

	p, _ := f.payments.GetByOrderID(ctx, "o1")
	if p.Status != payment.StatusFailed || p.FailureReason != "card declined" {
		t.Errorf("expected FAILED/card declined, got %s %q", p.Status, p.FailureReason)
	}
	if _, ok := f.bus.last(t).(payment.FailedEvent); !ok {
		t.Fatalf("expected FailedEvent, got %T", f.bus.last(t))
	}
}

func TestScanOnceSkipsYoungAndNonCard(t *testing.T) {
	f := newFixture(t)
	r := newReconciler(f)
	ctx := context.Background()

	insertUnsettled(t, f, "o-young", payment.MethodCard, payment.StatusProcessing, 10*time.Second)
	insertUnsettled(t, f, "o-point", payment.MethodPoint, payment.StatusPending, 2*time.Minute)
	f.gateway.lookupTx = payment.Transaction{Status: payment.GatewaySuccess, TransactionKey: "tx-x"}

	r.ScanOnce(ctx)

	young, _ := f.payments.GetByOrderID(ctx, "o-young")
	if young.Status != payment.StatusProcessing {
		t.Errorf("payment inside the callback grace period must not be touched, got %s", young.Status)
	}
	pt, _ := f.payments.GetByOrderID(ctx, "o-point")
	if pt.Status != payment.StatusPending {
		t.Errorf("non-card payments are not the poller's business, got %s", pt.Status)
	}
}

func TestScanOnceFlagsStuckPaymentForReview(t *testing.T) {
	f := newFixture(t)
	r := newReconciler(f)
	ctx := context.Background()

	insertUnsettled(t, f, "o1", payment.MethodCard, payment.StatusProcessing, 6*time.Minute)
	f.gateway.lookupTx = payment.Transaction{OrderRef: "o1", Status: payment.GatewayPending}

	r.ScanOnce(ctx)

	p, _ := f.payments.GetByOrderID(ctx, "o1")
	if p.Status != payment.StatusProcessing {
		t.Errorf("a pending gateway reply must not settle, got %s", p.Status)
	}
	if !p.NeedsReview {
		t.Error("payment stuck past the review threshold should be flagged")
	}

	// the flag is sticky, a second scan leaves it alone
	r.ScanOnce(ctx)
	p, _ = f.payments.GetByOrderID(ctx, "o1")
	if !p.NeedsReview {
		t.Error("review flag must survive rescans")
	}
}

func TestScanOnceStaleSweepCatchesAgedOutPayments(t *testing.T) {
	f := newFixture(t)
	r := newReconciler(f)
	ctx := context.Background()

	// older than MaxAge: outside the reconcile window, caught by the sweep
	insertUnsettled(t, f, "o1", payment.MethodCard, payment.StatusProcessing, 30*time.Minute)
	f.gateway.lookupTx = payment.Transaction{OrderRef: "o1", Status: payment.GatewayPending}

	r.ScanOnce(ctx)

	p, _ := f.payments.GetByOrderID(ctx, "o1")
	if !p.NeedsReview {
		t.Error("aged-out unsettled payment should be flagged for review")
	}
}
