package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"
	"github.com/shopspring/decimal"
)

// IDGenerator issues identifiers for payment records.
type IDGenerator interface {
	NewID() string
}

// Service executes the payment stage of the saga and settles asynchronous
// gateway payments. Every terminal transition, whether it comes from the
// inline attempt, the gateway callback, or the reconciliation poller, flows
// through the same settle path and emits the same events.
type Service struct {
	payments  payment.Repository
	factory   *Factory
	publisher outbox.Publisher
	ids       IDGenerator
	log       observability.Logger
}

func NewService(
	payments payment.Repository,
	factory *Factory,
	publisher outbox.Publisher,
	ids IDGenerator,
	tel observability.Observability,
) *Service {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	return &Service{
		payments:  payments,
		factory:   factory,
		publisher: publisher,
		ids:       ids,
		log:       baseLog.With(observability.F("component", "payment_service")),
	}
}

type ProcessInput struct {
	CorrelationID string
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
	Details       payment.Details
}

// Process runs one payment attempt for an order. Validation and business
// declines produce a FAILED record plus a failure event rather than a handler
// error, so the saga always learns the outcome.
func (s *Service) Process(ctx context.Context, in ProcessInput) error {
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("order_id", in.OrderID),
		observability.F("method", string(in.Details.Method)),
	)

	existing, err := s.payments.GetByOrderID(ctx, in.OrderID)
	switch {
	case err == nil:
		// Redelivery after a partial failure. A settled record means only
		// the event publication may have been lost; a PROCESSING record is
		// the poller's job.
		if existing.Settled() {
			return s.publishTerminal(ctx, existing)
		}
		logger.Debug("payment_already_in_flight", observability.F("payment_id", existing.ID))
		if existing.Status == payment.StatusProcessing {
			return s.publishProcessing(ctx, existing)
		}
		return nil
	case errors.Is(err, payment.ErrNotFound):
		// first attempt
	default:
		return fmt.Errorf("payment: lookup: %w", err)
	}

	proc, err := s.factory.ProcessorFor(in.Details.Method)
	if err != nil {
		return s.failWithoutAttempt(ctx, in, err.Error())
	}
	if err := proc.ValidateCapability(ctx, in.UserID, in.Amount); err != nil {
		logger.Warn("payment_capability_rejected", observability.F("reason", err.Error()))
		return s.failWithoutAttempt(ctx, in, err.Error())
	}

	p, err := payment.New(s.ids.NewID(), in.OrderID, in.UserID, in.CorrelationID, in.Details.Method, in.Amount, "", payment.StatusPending)
	if err != nil {
		return s.failWithoutAttempt(ctx, in, err.Error())
	}
	if err := s.payments.Insert(ctx, p); err != nil {
		return fmt.Errorf("payment: insert: %w", err)
	}

	res, err := proc.Process(ctx, in.UserID, in.OrderID, in.Amount, in.Details)
	if err != nil {
		logger.Error("payment_attempt_error", observability.F("error", err.Error()))
		return s.settle(ctx, p, payment.StatusFailed, "", err.Error())
	}

	switch res.Status {
	case payment.StatusSuccess, payment.StatusFailed:
		return s.settle(ctx, p, res.Status, res.TransactionKey, res.Message)
	default:
		p.MarkProcessing(res.TransactionKey)
		if err := s.payments.Update(ctx, p); err != nil {
			return fmt.Errorf("payment: update: %w", err)
		}
		logger.Info("payment_processing",
			observability.F("payment_id", p.ID),
			observability.F("transaction_key", p.TransactionKey),
		)
		return s.publishProcessing(ctx, p)
	}
}

type CallbackInput struct {
	OrderRef       string
	TransactionKey string
	Status         payment.GatewayStatus
	Reason         string
}

// HandleCallback applies the gateway's push notification. It shares the
// settle path with the reconciliation poller, so whichever side reports first
// wins and the other becomes a no-op.
func (s *Service) HandleCallback(ctx context.Context, in CallbackInput) error {
	p, err := s.payments.GetByOrderID(ctx, in.OrderRef)
	if err != nil {
		return fmt.Errorf("payment: callback lookup %q: %w", in.OrderRef, err)
	}
	return s.settle(ctx, p, payment.StatusFromGateway(in.Status), in.TransactionKey, in.Reason)
}

// settle moves a payment to its terminal status and emits the saga event.
// Already settled payments are left alone; a PROCESSING target status means
// the gateway has not decided yet.
func (s *Service) settle(ctx context.Context, p *payment.Payment, status payment.Status, transactionKey, reason string) error {
	if p.Settled() {
		return nil
	}

	switch status {
	case payment.StatusSuccess:
		p.MarkSuccess(transactionKey)
	case payment.StatusFailed:
		p.MarkFailed(reason)
	default:
		return nil
	}

	if err := s.payments.Update(ctx, p); err != nil {
		return fmt.Errorf("payment: update: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("payment_settled",
		observability.F("payment_id", p.ID),
		observability.F("order_id", p.OrderID),
		observability.F("status", string(p.Status)),
	)
	return s.publishTerminal(ctx, p)
}

func (s *Service) publishTerminal(ctx context.Context, p *payment.Payment) error {
	var e outbox.Event
	switch p.Status {
	case payment.StatusSuccess:
		e = payment.NewCompletedEvent(p)
	case payment.StatusFailed:
		e = payment.NewFailedEventFromPayment(p)
	default:
		return nil
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		return fmt.Errorf("payment: publish %s: %w", e.EventName(), err)
	}
	return nil
}

// publishProcessing announces an in-flight gateway payment so the order side
// can move to PROCESSING while the authoritative status is pending.
func (s *Service) publishProcessing(ctx context.Context, p *payment.Payment) error {
	e := payment.NewProcessingEvent(p)
	if err := s.publisher.Publish(ctx, e); err != nil {
		return fmt.Errorf("payment: publish %s: %w", e.EventName(), err)
	}
	return nil
}

// failWithoutAttempt records a payment that was rejected before any money
// moved and emits the failure event.
func (s *Service) failWithoutAttempt(ctx context.Context, in ProcessInput, reason string) error {
	p, err := payment.New(s.ids.NewID(), in.OrderID, in.UserID, in.CorrelationID, in.Details.Method, in.Amount, "", payment.StatusPending)
	if err != nil {
		// Unrecordable input, typically a non-positive amount. The saga
		// still needs the failure signal.
		evt := payment.NewFailedEvent(in.CorrelationID, in.OrderID, in.UserID, in.Details.Method, in.Amount, reason)
		if pubErr := s.publisher.Publish(ctx, evt); pubErr != nil {
			return fmt.Errorf("payment: publish failed event: %w", pubErr)
		}
		return nil
	}
	if err := s.payments.Insert(ctx, p); err != nil {
		return fmt.Errorf("payment: insert: %w", err)
	}
	return s.settle(ctx, p, payment.StatusFailed, "", reason)
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return s.payments.Get(ctx, id)
}

// GetByOrder returns the payment attached to an order.
func (s *Service) GetByOrder(ctx context.Context, orderID string) (*payment.Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}
