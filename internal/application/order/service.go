package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	appcoupon "github.com/minsoo-kang/commerce-fulfillment/internal/application/coupon"
	appstock "github.com/minsoo-kang/commerce-fulfillment/internal/application/stock"
	domain "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
	dompayment "github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	useCaseOrderCreate = "order.create"
	spanPrefix         = "UC."
	publishTimeout     = 300 * time.Millisecond
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("order: repository failure")
)

// Service runs the synchronous half of order creation: price the lines,
// reserve stock, preview and apply the coupon discount, persist the order in
// PAYMENT_WAITING, and hand the rest of the flow to the saga via the created
// event. Coupon redemption and payment happen asynchronously.
type Service struct {
	repo    domain.Repository
	stocks  *appstock.Service
	coupons *appcoupon.Service
	ids     IDGenerator

	publisher outbox.Publisher
	tel       observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewService(
	repo domain.Repository,
	stocks *appstock.Service,
	coupons *appcoupon.Service,
	ids IDGenerator,
	publisher outbox.Publisher,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Service{
		repo:         repo,
		stocks:       stocks,
		coupons:      coupons,
		ids:          ids,
		publisher:    publisher,
		tel:          tel,
		log:          tel.Logger().With(observability.F("component", "order_service")),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

type Line struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	UserID       string
	Lines        []Line
	UserCouponID string
	Payment      dompayment.Details
}

type CreateOrderResult struct {
	OrderID     string
	Status      domain.Status
	TotalAmount string
}

// CreateOrder executes the synchronous order creation flow.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (_ *CreateOrderResult, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseOrderCreate))

	ctx, span := s.tel.Tracer().Start(ctx, spanPrefix+"CreateOrder",
		attribute.String("use_case", useCaseOrderCreate),
		attribute.String("order.user_id", in.UserID),
		attribute.Int("order.lines", len(in.Lines)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCaseOrderCreate),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat,
			observability.L("use_case", useCaseOrderCreate),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	if in.UserID == "" {
		outcome, statusText = "error", "USER_ID_REQUIRED"
		return nil, domain.ErrInvalidUser
	}
	if len(in.Lines) == 0 {
		outcome, statusText = "error", "EMPTY_ITEMS"
		return nil, domain.ErrEmptyItems
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	items, err := s.buildItems(ctx, in.Lines)
	if err != nil {
		outcome, statusText = "error", "ITEM_BUILD_FAILED"
		return nil, err
	}

	orderID := s.ids.NewID()
	entity, err := domain.New(orderID, in.UserID, items)
	if err != nil {
		outcome, statusText = "error", "DOMAIN_CONSTRUCTION_FAILED"
		return nil, err
	}
	itemsAmount := entity.TotalAmount

	if _, err = s.stocks.Reserve(ctx, orderID, items.QuantityByProduct()); err != nil {
		outcome, statusText = "error", "STOCK_RESERVE_FAILED"
		return nil, err
	}

	// From here on a failure must put the reserved stock back.
	if in.UserCouponID != "" {
		discount, perr := s.coupons.Preview(ctx, in.UserID, in.UserCouponID, itemsAmount)
		if perr != nil {
			outcome, statusText = "error", "COUPON_PREVIEW_FAILED"
			s.releaseOnFailure(ctx, orderID, logger)
			return nil, perr
		}
		if aerr := entity.ApplyDiscount(discount); aerr != nil {
			outcome, statusText = "error", "DISCOUNT_APPLY_FAILED"
			s.releaseOnFailure(ctx, orderID, logger)
			return nil, aerr
		}
	}

	if err = entity.WaitForPayment(); err != nil {
		outcome, statusText = "error", "STATE_TRANSITION_FAILED"
		s.releaseOnFailure(ctx, orderID, logger)
		return nil, err
	}
	if err = s.repo.Insert(ctx, entity); err != nil {
		outcome, statusText = "error", "REPO_INSERT_FAILED"
		s.releaseOnFailure(ctx, orderID, logger)
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRepository, err)
	}

	evt := domain.NewCreatedEvent(entity, in.UserCouponID, itemsAmount, in.Payment)
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	pubErr := s.publisher.Publish(pubCtx, evt)
	cancel()
	if pubErr != nil {
		// The order is persisted; losing the event would strand it in
		// PAYMENT_WAITING, so surface the failure to the caller.
		outcome, statusText = "error", "EVENT_PUBLISH_FAILED"
		return nil, fmt.Errorf("order: publish created event: %w", pubErr)
	}

	span.SetAttributes(attribute.String("order.status", string(entity.Status)))
	span.AddEvent("order.created", trace.WithAttributes(attribute.String("order.id", orderID)))

	return &CreateOrderResult{
		OrderID:     entity.ID,
		Status:      entity.Status,
		TotalAmount: entity.TotalAmount.String(),
	}, nil
}

// buildItems prices the requested lines from the current catalog.
func (s *Service) buildItems(ctx context.Context, lines []Line) (domain.Items, error) {
	items := make(domain.Items, 0, len(lines))
	for _, l := range lines {
		p, err := s.stocks.Product(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("order: product %s: %w", l.ProductID, err)
		}
		item, err := domain.NewItem(p.ID, l.Quantity, p.Price)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) releaseOnFailure(ctx context.Context, orderID string, logger observability.Logger) {
	if _, err := s.stocks.Release(ctx, orderID); err != nil {
		logger.Error("stock_release_after_failure_failed",
			observability.F("order_id", orderID),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Reservations lists the stock reservations held by an order.
func (s *Service) Reservations(ctx context.Context, orderID string) ([]*stock.Reservation, error) {
	return s.stocks.ListByOrder(ctx, orderID)
}
