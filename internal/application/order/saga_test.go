package order

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	appcoupon "github.com/minsoo-kang/commerce-fulfillment/internal/application/coupon"
	apppayment "github.com/minsoo-kang/commerce-fulfillment/internal/application/payment"
	appstock "github.com/minsoo-kang/commerce-fulfillment/internal/application/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/config"
	domcoupon "github.com/minsoo-kang/commerce-fulfillment/internal/domain/coupon"
	domevent "github.com/minsoo-kang/commerce-fulfillment/internal/domain/event"
	domain "github.com/minsoo-kang/commerce-fulfillment/internal/domain/order"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/outbox"
	dompayment "github.com/minsoo-kang/commerce-fulfillment/internal/domain/payment"
	dompoint "github.com/minsoo-kang/commerce-fulfillment/internal/domain/point"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/id"
	"github.com/minsoo-kang/commerce-fulfillment/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
)

// syncBus delivers events inline so a whole saga run finishes before the test
// asserts. Event names in hold are parked until flush, which lets a test
// sequence two order flows over the same coupon.
type syncBus struct {
	handlers map[string][]outbox.Handler
	hold     map[string]bool
	held     []outbox.Event
	log      []outbox.Event
	errs     []error
}

func newSyncBus() *syncBus {
	return &syncBus{
		handlers: make(map[string][]outbox.Handler),
		hold:     make(map[string]bool),
	}
}

func (b *syncBus) Subscribe(eventName string, h outbox.Handler) {
	b.handlers[eventName] = append(b.handlers[eventName], h)
}

func (b *syncBus) Publish(ctx context.Context, e outbox.Event) error {
	b.log = append(b.log, e)
	if b.hold[e.EventName()] {
		b.held = append(b.held, e)
		return nil
	}
	b.dispatch(ctx, e)
	return nil
}

func (b *syncBus) dispatch(ctx context.Context, e outbox.Event) {
	for _, h := range b.handlers[e.EventName()] {
		if err := h(ctx, e); err != nil {
			b.errs = append(b.errs, err)
		}
	}
}

func (b *syncBus) flush(ctx context.Context) {
	for len(b.held) > 0 {
		e := b.held[0]
		b.held = b.held[1:]
		b.dispatch(ctx, e)
	}
}

// sagaGateway stands in for the card gateway. It starts unreachable; a test
// flips lookupTx/lookupErr once the gateway is supposed to have decided.
type sagaGateway struct {
	submitErr error
	lookupTx  dompayment.Transaction
	lookupErr error
}

func newSagaGateway() *sagaGateway {
	return &sagaGateway{
		submitErr: dompayment.ErrGatewayUnavailable,
		lookupErr: dompayment.ErrGatewayUnavailable,
	}
}

func (g *sagaGateway) Submit(context.Context, dompayment.SubmitRequest) (dompayment.Transaction, error) {
	return dompayment.Transaction{}, g.submitErr
}

func (g *sagaGateway) TransactionByKey(context.Context, string) (dompayment.Transaction, error) {
	return g.lookupTx, g.lookupErr
}

func (g *sagaGateway) TransactionByOrder(context.Context, string) (dompayment.Transaction, error) {
	return g.lookupTx, g.lookupErr
}

type sagaFixture struct {
	bus         *syncBus
	orders      *memory.OrderRepository
	products    *memory.ProductRepository
	coupons     *memory.CouponRepository
	userCoupons *memory.UserCouponRepository
	points      *memory.PointRepository
	payments    *memory.PaymentRepository
	deadLetters *memory.DeadLetterRepository
	gateway     *sagaGateway

	orderSvc   *Service
	stockSvc   *appstock.Service
	couponSvc  *appcoupon.Service
	paymentSvc *apppayment.Service
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()

	f := &sagaFixture{
		bus:         newSyncBus(),
		orders:      memory.NewOrderRepository(),
		products:    memory.NewProductRepository(),
		coupons:     memory.NewCouponRepository(),
		userCoupons: memory.NewUserCouponRepository(),
		points:      memory.NewPointRepository(),
		payments:    memory.NewPaymentRepository(),
		deadLetters: memory.NewDeadLetterRepository(),
		gateway:     newSagaGateway(),
	}

	locks := memory.NewKeyLock()
	ids := id.NewUUIDGenerator()
	reservations := memory.NewReservationRepository()
	guard := domevent.NewGuard(memory.NewHandledEventRepository(), nil)

	f.stockSvc = appstock.NewService(f.products, reservations, locks, nil, nil, nil)
	f.couponSvc = appcoupon.NewService(f.coupons, f.userCoupons, locks, nil)

	factory := apppayment.NewFactory(
		apppayment.NewPointProcessor(f.points, locks),
		apppayment.NewGatewayProcessor(f.gateway, "", decimal.Zero, nil),
	)
	f.paymentSvc = apppayment.NewService(f.payments, factory, f.bus, ids, nil)

	f.orderSvc = NewService(f.orders, f.stockSvc, f.couponSvc, ids, f.bus, nil)

	appcoupon.NewWorker(f.couponSvc, f.bus, f.bus, guard, nil).Start()
	apppayment.NewWorker(f.paymentSvc, f.bus, guard, nil).Start()
	NewWorker(f.orders, f.stockSvc, f.bus, guard, f.deadLetters, ids, nil, nil).Start()

	return f
}

func (f *sagaFixture) seedProduct(t *testing.T, productID string, price int64, stockQty int) {
	t.Helper()
	p := &stock.Product{ID: productID, Name: productID, Price: decimal.NewFromInt(price), Stock: stockQty}
	if err := f.products.Save(context.Background(), p); err != nil {
		t.Fatal(err)
	}
}

func (f *sagaFixture) seedPoints(t *testing.T, userID string, balance int64) {
	t.Helper()
	err := f.points.Save(context.Background(), &dompoint.Account{UserID: userID, Balance: decimal.NewFromInt(balance)})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *sagaFixture) issueCoupon(t *testing.T, userID string, discount int64) *domcoupon.UserCoupon {
	t.Helper()
	ctx := context.Background()
	c := &domcoupon.Coupon{
		ID:             "c1",
		Name:           "launch",
		Type:           domcoupon.FixedAmount,
		DiscountAmount: decimal.NewFromInt(discount),
		ValidFrom:      time.Now().Add(-time.Hour),
		ValidUntil:     time.Now().Add(time.Hour),
		Remaining:      10,
	}
	if err := f.coupons.Save(ctx, c); err != nil {
		t.Fatal(err)
	}
	uc, err := f.couponSvc.Issue(ctx, userID, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	return uc
}

func (f *sagaFixture) requireNoHandlerErrors(t *testing.T) {
	t.Helper()
	for _, err := range f.bus.errs {
		t.Errorf("unexpected handler error: %v", err)
	}
}

func (f *sagaFixture) createdEvent(t *testing.T, orderID string) domain.CreatedEvent {
	t.Helper()
	for _, e := range f.bus.log {
		if evt, ok := e.(domain.CreatedEvent); ok && evt.OrderID == orderID {
			return evt
		}
	}
	t.Fatalf("no created event for order %s", orderID)
	return domain.CreatedEvent{}
}

func TestSagaHappyPathWithCoupon(t *testing.T) {
	f := newSagaFixture(t)
	f.seedProduct(t, "p1", 10000, 10)
	f.seedPoints(t, "u1", 50000)
	uc := f.issueCoupon(t, "u1", 2000)
	ctx := context.Background()

	res, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       "u1",
		Lines:        []Line{{ProductID: "p1", Quantity: 2}},
		UserCouponID: uc.ID,
		Payment:      dompayment.Details{Method: dompayment.MethodPoint},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if res.TotalAmount != "18000" {
		t.Errorf("expected total 18000 after discount, got %s", res.TotalAmount)
	}
	f.requireNoHandlerErrors(t)

	o, err := f.orders.Get(ctx, res.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", o.Status)
	}

	p, err := f.payments.GetByOrderID(ctx, res.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != dompayment.StatusSuccess || p.TransactionKey != "POINT_u1" {
		t.Errorf("expected settled point payment, got %s %q", p.Status, p.TransactionKey)
	}
	if !p.Amount.Equal(decimal.NewFromInt(18000)) {
		t.Errorf("payment must charge the discounted amount, got %s", p.Amount)
	}

	account, _ := f.points.Get(ctx, "u1")
	if !account.Balance.Equal(decimal.NewFromInt(32000)) {
		t.Errorf("expected balance 32000, got %s", account.Balance)
	}

	used, _ := f.userCoupons.Get(ctx, uc.ID)
	if used.Status != domcoupon.UserCouponUsed || used.OrderID != res.OrderID {
		t.Errorf("coupon should be consumed by the order, got %s %q", used.Status, used.OrderID)
	}

	reservations, _ := f.stockSvc.ListByOrder(ctx, res.OrderID)
	for _, r := range reservations {
		if r.Status != stock.ReservationConfirmed {
			t.Errorf("expected CONFIRMED reservation, got %s", r.Status)
		}
	}
	product, _ := f.products.Get(ctx, "p1")
	if product.Stock != 8 {
		t.Errorf("expected stock 8, got %d", product.Stock)
	}

	// redelivered created event: the guard absorbs it, nothing moves
	if err := f.bus.Publish(ctx, f.createdEvent(t, res.OrderID)); err != nil {
		t.Fatal(err)
	}
	account, _ = f.points.Get(ctx, "u1")
	if !account.Balance.Equal(decimal.NewFromInt(32000)) {
		t.Errorf("redelivery must not debit twice, got %s", account.Balance)
	}

	letters, _ := f.deadLetters.List(ctx)
	if len(letters) != 0 {
		t.Errorf("expected no dead letters, got %d", len(letters))
	}
}

func TestSagaRejectsInsufficientStock(t *testing.T) {
	f := newSagaFixture(t)
	f.seedProduct(t, "p1", 10000, 1)
	f.seedPoints(t, "u1", 50000)
	ctx := context.Background()

	_, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:  "u1",
		Lines:   []Line{{ProductID: "p1", Quantity: 2}},
		Payment: dompayment.Details{Method: dompayment.MethodPoint},
	})
	if !errors.Is(err, stock.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, _ := f.products.Get(ctx, "p1")
	if product.Stock != 1 {
		t.Errorf("failed order must not consume stock, got %d", product.Stock)
	}
	if len(f.bus.log) != 0 {
		t.Errorf("rejected order must not start a saga, published %d events", len(f.bus.log))
	}
}

func TestSagaCompensatesOnPaymentFailure(t *testing.T) {
	f := newSagaFixture(t)
	f.seedProduct(t, "p1", 10000, 5)
	f.seedPoints(t, "u1", 1000)
	uc := f.issueCoupon(t, "u1", 2000)
	ctx := context.Background()

	res, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       "u1",
		Lines:        []Line{{ProductID: "p1", Quantity: 3}},
		UserCouponID: uc.ID,
		Payment:      dompayment.Details{Method: dompayment.MethodPoint},
	})
	if err != nil {
		t.Fatalf("the synchronous half must still succeed: %v", err)
	}
	f.requireNoHandlerErrors(t)

	o, _ := f.orders.Get(ctx, res.OrderID)
	if o.Status != domain.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", o.Status)
	}
	if !strings.HasPrefix(o.CancelReason, "PAYMENT_FAILED") {
		t.Errorf("cancel reason should name the failed stage, got %q", o.CancelReason)
	}

	p, _ := f.payments.GetByOrderID(ctx, res.OrderID)
	if p.Status != dompayment.StatusFailed {
		t.Errorf("expected FAILED payment, got %s", p.Status)
	}

	product, _ := f.products.Get(ctx, "p1")
	if product.Stock != 5 {
		t.Errorf("compensation must restore stock, got %d", product.Stock)
	}
	reservations, _ := f.stockSvc.ListByOrder(ctx, res.OrderID)
	for _, r := range reservations {
		if r.Status != stock.ReservationReleased {
			t.Errorf("expected RELEASED reservation, got %s", r.Status)
		}
	}

	restored, _ := f.userCoupons.Get(ctx, uc.ID)
	if restored.Status != domcoupon.UserCouponAvailable || restored.OrderID != "" {
		t.Errorf("coupon should be returned, got %s %q", restored.Status, restored.OrderID)
	}

	account, _ := f.points.Get(ctx, "u1")
	if !account.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("failed payment must not debit, got %s", account.Balance)
	}

	letters, _ := f.deadLetters.List(ctx)
	if len(letters) != 0 {
		t.Errorf("clean compensation must not dead-letter, got %d", len(letters))
	}
}

func TestSagaCouponConflictCancelsSecondOrder(t *testing.T) {
	f := newSagaFixture(t)
	f.seedProduct(t, "p1", 10000, 10)
	f.seedPoints(t, "u1", 100000)
	uc := f.issueCoupon(t, "u1", 2000)
	ctx := context.Background()

	// park created events so both orders pass the synchronous coupon preview
	// before either saga redeems the one-time token
	f.bus.hold[domain.CreatedEvent{}.EventName()] = true

	first, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       "u1",
		Lines:        []Line{{ProductID: "p1", Quantity: 1}},
		UserCouponID: uc.ID,
		Payment:      dompayment.Details{Method: dompayment.MethodPoint},
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID:       "u1",
		Lines:        []Line{{ProductID: "p1", Quantity: 1}},
		UserCouponID: uc.ID,
		Payment:      dompayment.Details{Method: dompayment.MethodPoint},
	})
	if err != nil {
		t.Fatal(err)
	}

	f.bus.hold[domain.CreatedEvent{}.EventName()] = false
	f.bus.flush(ctx)
	f.requireNoHandlerErrors(t)

	winner, _ := f.orders.Get(ctx, first.OrderID)
	if winner.Status != domain.StatusCompleted {
		t.Errorf("first order should win the coupon, got %s", winner.Status)
	}

	loser, _ := f.orders.Get(ctx, second.OrderID)
	if loser.Status != domain.StatusCancelled {
		t.Fatalf("second order should be compensated, got %s", loser.Status)
	}
	if !strings.HasPrefix(loser.CancelReason, "COUPON_USAGE_FAILED") {
		t.Errorf("cancel reason should name the coupon stage, got %q", loser.CancelReason)
	}

	used, _ := f.userCoupons.Get(ctx, uc.ID)
	if used.OrderID != first.OrderID {
		t.Errorf("coupon must stay with the winner, got %q", used.OrderID)
	}

	// winner consumed one unit, loser's unit went back
	product, _ := f.products.Get(ctx, "p1")
	if product.Stock != 9 {
		t.Errorf("expected stock 9, got %d", product.Stock)
	}

	reservations, _ := f.stockSvc.ListByOrder(ctx, second.OrderID)
	for _, r := range reservations {
		if r.Status != stock.ReservationReleased {
			t.Errorf("loser reservation should be RELEASED, got %s", r.Status)
		}
	}
}

func TestSagaSettlesParkedCardPaymentViaReconciler(t *testing.T) {
	f := newSagaFixture(t)
	f.seedProduct(t, "p1", 10000, 10)
	ctx := context.Background()

	res, err := f.orderSvc.CreateOrder(ctx, CreateOrderInput{
		UserID: "u1",
		Lines:  []Line{{ProductID: "p1", Quantity: 2}},
		Payment: dompayment.Details{
			Method: dompayment.MethodCard,
			Card:   &dompayment.CardDetails{Type: "CREDIT", Number: "4111-1111"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	f.requireNoHandlerErrors(t)

	// gateway unreachable: the payment parks and the order follows it
	o, _ := f.orders.Get(ctx, res.OrderID)
	if o.Status != domain.StatusProcessing {
		t.Fatalf("parked payment should move the order to PROCESSING, got %s", o.Status)
	}
	p, _ := f.payments.GetByOrderID(ctx, res.OrderID)
	if p.Status != dompayment.StatusProcessing {
		t.Fatalf("expected PROCESSING payment, got %s", p.Status)
	}
	reservations, _ := f.stockSvc.ListByOrder(ctx, res.OrderID)
	for _, r := range reservations {
		if r.Status != stock.ReservationReserved {
			t.Errorf("stock must stay RESERVED while the gateway decides, got %s", r.Status)
		}
	}

	// the gateway comes back with a decision; the poller picks it up
	f.gateway.lookupErr = nil
	f.gateway.lookupTx = dompayment.Transaction{
		OrderRef:       res.OrderID,
		TransactionKey: "tx-1",
		Status:         dompayment.GatewaySuccess,
	}
	reconciler := apppayment.NewReconciler(f.paymentSvc, f.payments, f.gateway, config.PollerConfig{
		Interval:    time.Second,
		MinAge:      0,
		MaxAge:      time.Hour,
		BatchSize:   50,
		ReviewAfter: time.Hour,
	}, nil)
	reconciler.ScanOnce(ctx)
	f.requireNoHandlerErrors(t)

	o, _ = f.orders.Get(ctx, res.OrderID)
	if o.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED after reconciliation, got %s", o.Status)
	}
	p, _ = f.payments.GetByOrderID(ctx, res.OrderID)
	if p.Status != dompayment.StatusSuccess || p.TransactionKey != "tx-1" {
		t.Errorf("expected settled card payment, got %s %q", p.Status, p.TransactionKey)
	}
	reservations, _ = f.stockSvc.ListByOrder(ctx, res.OrderID)
	for _, r := range reservations {
		if r.Status != stock.ReservationConfirmed {
			t.Errorf("expected CONFIRMED reservation, got %s", r.Status)
		}
	}
	product, _ := f.products.Get(ctx, "p1")
	if product.Stock != 8 {
		t.Errorf("expected stock 8, got %d", product.Stock)
	}
	if n := completedEvents(f.bus.log); n != 1 {
		t.Errorf("expected exactly one completed event, got %d", n)
	}

	// a second scan finds nothing to settle
	reconciler.ScanOnce(ctx)
	f.requireNoHandlerErrors(t)
	if n := completedEvents(f.bus.log); n != 1 {
		t.Errorf("rescan must not re-settle, got %d completed events", n)
	}
}

func completedEvents(log []outbox.Event) int {
	n := 0
	for _, e := range log {
		if _, ok := e.(dompayment.CompletedEvent); ok {
			n++
		}
	}
	return n
}
