package coupon

import (
	"context"
	"fmt"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/coupon"
	domevent "github.com/minsoo-kang/commerce-fulfillment/internal/domain/event"
	domorder "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
	dompayment "github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"
)

const (
	consumerCouponStage    = "coupon-worker.order-created"
	consumerCouponRollback = "coupon-worker.payment-failed"
)

// Worker runs the coupon stage of the saga: it redeems the selected coupon
// when an order is created and returns it when the payment later fails.
type Worker struct {
	svc        *Service
	subscriber outbox.Subscriber
	publisher  outbox.Publisher
	guard      *domevent.Guard
	log        observability.Logger
}

func NewWorker(svc *Service, subscriber outbox.Subscriber, publisher outbox.Publisher, guard *domevent.Guard, tel observability.Observability) *Worker {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	return &Worker{
		svc:        svc,
		subscriber: subscriber,
		publisher:  publisher,
		guard:      guard,
		log:        baseLog.With(observability.F("component", "coupon_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domorder.CreatedEvent{}.EventName(), w.handleOrderCreated)
	w.subscriber.Subscribe(dompayment.FailedEvent{}.EventName(), w.handlePaymentFailed)
}

func (w *Worker) handleOrderCreated(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(domorder.CreatedEvent)
	if !ok {
		return nil
	}
	return w.guard.Run(ctx, consumerCouponStage, e, func(ctx context.Context) error {
		return w.processCouponStage(ctx, evt)
	})
}

func (w *Worker) processCouponStage(ctx context.Context, evt domorder.CreatedEvent) error {
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("order_id", evt.OrderID),
		observability.F("correlation_id", evt.Correlation),
	)

	amount := evt.ItemsAmount
	applied := false

	if evt.UserCouponID != "" {
		discount, err := w.svc.Redeem(ctx, evt.UserCouponID, evt.OrderID, evt.ItemsAmount)
		if err != nil {
			logger.Warn("coupon_stage_failed",
				observability.F("user_coupon_id", evt.UserCouponID),
				observability.F("error", err.Error()),
			)
			rollback := domorder.NewRollbackEvent(evt.Correlation, evt.OrderID, evt.UserID, domorder.RollbackCouponUsageFailed, err.Error())
			if pubErr := w.publisher.Publish(ctx, rollback); pubErr != nil {
				return fmt.Errorf("coupon worker: publish rollback: %w", pubErr)
			}
			return nil
		}
		amount = evt.ItemsAmount.Sub(discount)
		applied = true
	}

	processed := coupon.NewProcessedEvent(evt.Correlation, evt.OrderID, evt.UserID, applied, evt.UserCouponID, amount, evt.Payment)
	if err := w.publisher.Publish(ctx, processed); err != nil {
		return fmt.Errorf("coupon worker: publish processed: %w", err)
	}

	logger.Info("coupon_stage_done",
		observability.F("applied", applied),
		observability.F("charge_amount", amount.String()),
	)
	return nil
}

func (w *Worker) handlePaymentFailed(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(dompayment.FailedEvent)
	if !ok {
		return nil
	}
	return w.guard.Run(ctx, consumerCouponRollback, e, func(ctx context.Context) error {
		if err := w.svc.Rollback(ctx, evt.OrderID); err != nil {
			return fmt.Errorf("coupon worker: rollback: %w", err)
		}
		return nil
	})
}
