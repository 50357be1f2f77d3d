package order

import (
	"context"
	"fmt"
	"time"

	appstock "github.com/minsoo-kang/commerce-fulfillment/internal/application/stock"
	domevent "github.com/minsoo-kang/commerce-fulfillment/internal/domain/event"
	domain "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
	dompayment "github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"
)

const (
	consumerOrderProcessing  = "order-worker.payment-processing"
	consumerOrderCompletion  = "order-worker.payment-completed"
	consumerOrderPaymentFail = "order-worker.payment-failed"
	consumerOrderRollback    = "order-worker.order-rollback"
)

// Worker closes the saga. On a completed payment it finalizes the order and
// confirms its reservations; on a failed payment or an explicit rollback it
// releases stock and cancels the order. Failed compensations are recorded as
// dead letters for an operator, never retried automatically.
type Worker struct {
	repo        domain.Repository
	stocks      *appstock.Service
	subscriber  outbox.Subscriber
	guard       *domevent.Guard
	deadLetters domevent.DeadLetterRepository
	ids         IDGenerator
	stream      Stream

	log             observability.Logger
	deadLetterCount observability.Counter
}

func NewWorker(
	repo domain.Repository,
	stocks *appstock.Service,
	subscriber outbox.Subscriber,
	guard *domevent.Guard,
	deadLetters domevent.DeadLetterRepository,
	ids IDGenerator,
	stream Stream,
	tel observability.Observability,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		repo:            repo,
		stocks:          stocks,
		subscriber:      subscriber,
		guard:           guard,
		deadLetters:     deadLetters,
		ids:             ids,
		stream:          stream,
		log:             tel.Logger().With(observability.F("component", "order_worker")),
		deadLetterCount: tel.Metrics().Counter(observability.MSagaDeadLetters),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dompayment.ProcessingEvent{}.EventName(), w.handlePaymentProcessing)
	w.subscriber.Subscribe(dompayment.CompletedEvent{}.EventName(), w.handlePaymentCompleted)
	w.subscriber.Subscribe(dompayment.FailedEvent{}.EventName(), w.handlePaymentFailed)
	w.subscriber.Subscribe(domain.RollbackEvent{}.EventName(), w.handleRollback)
}

func (w *Worker) handlePaymentProcessing(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(dompayment.ProcessingEvent)
	if !ok {
		return nil
	}
	return w.guard.Run(ctx, consumerOrderProcessing, e, func(ctx context.Context) error {
		o, err := w.repo.Get(ctx, evt.OrderID)
		if err != nil {
			return fmt.Errorf("order worker: load order: %w", err)
		}
		if err := o.ProcessingPayment(); err != nil {
			// The settlement already moved the order on; the in-flight notice
			// arrived late and carries no work.
			logctx.FromOr(ctx, w.log).Debug("stale_processing_notice",
				observability.F("order_id", o.ID),
				observability.F("status", string(o.Status)),
			)
			return nil
		}
		if err := w.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("order worker: update order: %w", err)
		}

		logctx.FromOr(ctx, w.log).Info("order_payment_processing",
			observability.F("order_id", o.ID),
			observability.F("payment_id", evt.PaymentID),
		)
		return nil
	})
}

func (w *Worker) handlePaymentCompleted(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(dompayment.CompletedEvent)
	if !ok {
		return nil
	}
	return w.guard.Run(ctx, consumerOrderCompletion, e, func(ctx context.Context) error {
		o, err := w.repo.Get(ctx, evt.OrderID)
		if err != nil {
			return fmt.Errorf("order worker: load order: %w", err)
		}
		if err := o.CompletePayment(); err != nil {
			return fmt.Errorf("order worker: complete transition: %w", err)
		}
		if err := w.repo.Update(ctx, o); err != nil {
			return fmt.Errorf("order worker: update order: %w", err)
		}
		if err := w.stocks.Confirm(ctx, evt.OrderID); err != nil {
			return fmt.Errorf("order worker: confirm stock: %w", err)
		}

		if w.stream != nil {
			if err := w.stream.OrderCompleted(ctx, o); err != nil {
				logctx.FromOr(ctx, w.log).Warn("order_completed_stream_failed",
					observability.F("order_id", o.ID),
					observability.F("error", err.Error()),
				)
			}
		}

		logctx.FromOr(ctx, w.log).Info("order_completed",
			observability.F("order_id", o.ID),
			observability.F("correlation_id", evt.Correlation),
		)
		return nil
	})
}

func (w *Worker) handlePaymentFailed(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(dompayment.FailedEvent)
	if !ok {
		return nil
	}
	return w.guard.Run(ctx, consumerOrderPaymentFail, e, func(ctx context.Context) error {
		reason := "PAYMENT_FAILED"
		if evt.Reason != "" {
			reason = "PAYMENT_FAILED: " + evt.Reason
		}
		if err := w.compensate(ctx, evt.OrderID, reason); err != nil {
			w.deadLetter(ctx, consumerOrderPaymentFail, e, evt.OrderID, err)
		}
		return nil
	})
}

func (w *Worker) handleRollback(ctx context.Context, e outbox.Event) error {
	evt, ok := e.(domain.RollbackEvent)
	if !ok {
		return nil
	}
	return w.guard.Run(ctx, consumerOrderRollback, e, func(ctx context.Context) error {
		reason := string(evt.Reason)
		if evt.Detail != "" {
			reason = reason + ": " + evt.Detail
		}
		if err := w.compensate(ctx, evt.OrderID, reason); err != nil {
			w.deadLetter(ctx, consumerOrderRollback, e, evt.OrderID, err)
		}
		return nil
	})
}

// compensate releases the order's reserved stock and cancels it. Both halves
// are idempotent, so a partial failure can be re-run by an operator.
func (w *Worker) compensate(ctx context.Context, orderID, reason string) error {
	if _, err := w.stocks.Release(ctx, orderID); err != nil {
		return fmt.Errorf("release stock: %w", err)
	}

	o, err := w.repo.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if err := o.Cancel(reason); err != nil {
		return fmt.Errorf("cancel transition: %w", err)
	}
	if err := w.repo.Update(ctx, o); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	logctx.FromOr(ctx, w.log).Info("order_cancelled",
		observability.F("order_id", orderID),
		observability.F("reason", reason),
	)
	return nil
}

// deadLetter records a failed compensation for manual intervention. The event
// claim stays consumed: re-driving a half-applied compensation without a human
// looking first is worse than parking it.
func (w *Worker) deadLetter(ctx context.Context, handler string, e outbox.Event, orderID string, cause error) {
	dl := domevent.DeadLetter{
		ID:         w.ids.NewID(),
		Handler:    handler,
		EventName:  e.EventName(),
		OrderID:    orderID,
		Reason:     cause.Error(),
		OccurredAt: time.Now().UTC(),
	}
	if ce, ok := e.(outbox.Correlated); ok {
		dl.EventID = ce.EventID()
	}

	if err := w.deadLetters.Save(ctx, dl); err != nil {
		logctx.FromOr(ctx, w.log).Error("dead_letter_save_failed",
			observability.F("order_id", orderID),
			observability.F("cause", cause.Error()),
			observability.F("error", err.Error()),
		)
		return
	}

	w.deadLetterCount.Add(1,
		observability.L("handler", handler),
		observability.L("event", e.EventName()),
	)
	logctx.FromOr(ctx, w.log).Error("compensation_dead_lettered",
		observability.F("order_id", orderID),
		observability.F("handler", handler),
		observability.F("cause", cause.Error()),
	)
}
