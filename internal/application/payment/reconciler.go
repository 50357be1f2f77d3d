package payment

import (
	"context"
	"time"

	"github.com/minsoo-kang/commerce-fulfillment/internal/config"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
)

// Reconciler is the pull side of gateway settlement. It periodically scans
// PENDING/PROCESSING card payments whose callback never arrived, asks the
// gateway for the authoritative status, and settles through the same path the
// callback uses. Payments stuck past the review threshold are flagged for a
// human instead of being failed blind.
type Reconciler struct {
	svc      *Service
	payments payment.Repository
	gateway  payment.GatewayClient
	cfg      config.PollerConfig

	log         observability.Logger
	reviewCount observability.Counter
	sleep       func(ctx context.Context, d time.Duration) bool
}

func NewReconciler(svc *Service, payments payment.Repository, gateway payment.GatewayClient, cfg config.PollerConfig, tel observability.Observability) *Reconciler {
	baseLog := observability.NopLogger()
	metrics := observability.NopMetrics()
	if tel != nil {
		baseLog = tel.Logger()
		metrics = tel.Metrics()
	}
	return &Reconciler{
		svc:         svc,
		payments:    payments,
		gateway:     gateway,
		cfg:         cfg,
		log:         baseLog.With(observability.F("component", "payment_reconciler")),
		reviewCount: metrics.Counter(observability.MPaymentManualReview),
		sleep:       sleepCtx,
	}
}

// Start runs the scan loop until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		for {
			if !r.sleep(ctx, r.cfg.Interval) {
				return
			}
			r.ScanOnce(ctx)
		}
	}()
}

// ScanOnce processes one reconciliation batch. Errors on individual payments
// are logged and skipped so one bad record cannot starve the rest.
func (r *Reconciler) ScanOnce(ctx context.Context) {
	now := time.Now().UTC()
	from := now.Add(-r.cfg.MaxAge)
	to := now.Add(-r.cfg.MinAge)

	batch, err := r.payments.FindUnsettledBetween(ctx, from, to, r.cfg.BatchSize)
	if err != nil {
		r.log.Error("reconcile_scan_failed", observability.F("error", err.Error()))
		return
	}

	for _, p := range batch {
		if p.Method != payment.MethodCard {
			continue
		}
		if err := r.reconcile(ctx, p, now); err != nil {
			r.log.Warn("reconcile_payment_failed",
				observability.F("payment_id", p.ID),
				observability.F("order_id", p.OrderID),
				observability.F("error", err.Error()),
			)
		}
	}

	// Payments that aged out of the scan window without settling need a
	// human. The flag is sticky, so rescanning the same rows is cheap.
	stale, err := r.payments.FindUnsettledBetween(ctx, time.Time{}, now.Add(-r.cfg.ReviewAfter), r.cfg.BatchSize)
	if err != nil {
		r.log.Error("reconcile_stale_scan_failed", observability.F("error", err.Error()))
		return
	}
	for _, p := range stale {
		r.maybeFlagForReview(ctx, p, now)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, p *payment.Payment, now time.Time) error {
	var tx payment.Transaction
	var err error
	if p.TransactionKey != "" {
		tx, err = r.gateway.TransactionByKey(ctx, p.TransactionKey)
	} else {
		tx, err = r.gateway.TransactionByOrder(ctx, p.OrderID)
	}
	if err != nil {
		return err
	}

	if tx.Status == payment.GatewayPending {
		r.maybeFlagForReview(ctx, p, now)
		return nil
	}
	return r.svc.settle(ctx, p, payment.StatusFromGateway(tx.Status), tx.TransactionKey, tx.Reason)
}

func (r *Reconciler) maybeFlagForReview(ctx context.Context, p *payment.Payment, now time.Time) {
	if p.NeedsReview || now.Sub(p.CreatedAt) < r.cfg.ReviewAfter {
		return
	}
	p.FlagForReview()
	if err := r.payments.Update(ctx, p); err != nil {
		r.log.Error("reconcile_review_flag_failed",
			observability.F("payment_id", p.ID),
			observability.F("error", err.Error()),
		)
		return
	}
	r.reviewCount.Add(1, observability.L("method", string(p.Method)))
	r.log.Warn("payment_flagged_for_review",
		observability.F("payment_id", p.ID),
		observability.F("order_id", p.OrderID),
		observability.F("age_seconds", now.Sub(p.CreatedAt).Seconds()),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
