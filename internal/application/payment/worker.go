package payment

import (
	"context"
	"fmt"

	domcoupon "github.com/minsoo-kang/commerce-fulfillment/internal/domain/coupon"
	domevent "github.com/minsoo-kang/commerce-fulfillment/internal/domain/event"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
)

const consumerPaymentStage = "payment-worker.coupon-processed"

// Worker triggers the payment attempt once the coupon stage reports the final
// charge amount.
type Worker struct {
	svc        *Service
	subscriber outbox.Subscriber
	guard      *domevent.Guard
	log        observability.Logger
}

func NewWorker(svc *Service, subscriber outbox.Subscriber, guard *domevent.Guard, tel observability.Observability) *Worker {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	return &Worker{
		svc:        svc,
		subscriber: subscriber,
		guard:      guard,
		log:        baseLog.With(observability.F("component", "payment_worker")),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domcoupon.ProcessedEvent{}.EventName(), w.handleCouponProcessed)
}

func (w *Worker) handleCouponProcessed(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(domcoupon.ProcessedEvent)
	if !ok {
		return nil
	}
	return w.guard.Run(ctx, consumerPaymentStage, e, func(ctx context.Context) error {
		err := w.svc.Process(ctx, ProcessInput{
			CorrelationID: evt.Correlation,
			OrderID:       evt.OrderID,
			UserID:        evt.UserID,
			Amount:        evt.Amount,
			Details:       evt.Payment,
		})
		if err != nil {
			return fmt.Errorf("payment worker: process: %w", err)
		}
		return nil
	})
}
