package stock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/lock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/domain/stock"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability"
	"github.com/minsoo-kang/commerce-fulfillment/internal/observability/logctx"
)

// Service owns stock levels and their reservations. Reserve decrements the
// on-shelf count immediately and records RESERVED rows; Confirm and Release
// settle those rows after the saga decides the order's fate.
type Service struct {
	products     stock.ProductRepository
	reservations stock.ReservationRepository
	locks        lock.Keyed

	stream Stream
	cache  CacheInvalidator
	log    observability.Logger
}

func NewService(
	products stock.ProductRepository,
	reservations stock.ReservationRepository,
	locks lock.Keyed,
	stream Stream,
	cache CacheInvalidator,
	tel observability.Observability,
) *Service {
	baseLog := observability.NopLogger()
	if tel != nil {
		baseLog = tel.Logger()
	}
	return &Service{
		products:     products,
		reservations: reservations,
		locks:        locks,
		stream:       stream,
		cache:        cache,
		log:          baseLog.With(observability.F("component", "stock_service")),
	}
}

// Product returns a snapshot of the product, used to price order lines.
func (s *Service) Product(ctx context.Context, id string) (*stock.Product, error) {
	return s.products.Get(ctx, id)
}

// Reserve takes quantities off the shelf for an order. All products are
// validated before any is decremented, so a failing line leaves every stock
// level untouched. Product locks are acquired in ascending id order.
func (s *Service) Reserve(ctx context.Context, orderID string, quantities map[string]int) ([]*stock.Reservation, error) {
	logger := logctx.FromOr(ctx, s.log)

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		release := s.locks.Lock("product:" + id)
		defer release()
	}

	products := make(map[string]*stock.Product, len(ids))
	for _, id := range ids {
		qty := quantities[id]
		if qty <= 0 {
			return nil, stock.ErrInvalidQuantity
		}
		p, err := s.products.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("stock: load product %s: %w", id, err)
		}
		if p.Stock < qty {
			logger.Warn("stock_reserve_rejected",
				observability.F("order_id", orderID),
				observability.F("product_id", id),
				observability.F("requested", qty),
				observability.F("available", p.Stock),
			)
			return nil, stock.ErrInsufficientStock
		}
		products[id] = p
	}

	now := time.Now().UTC()
	rs := make([]*stock.Reservation, 0, len(ids))
	for _, id := range ids {
		qty := quantities[id]
		p := products[id]
		if err := p.Decrease(qty); err != nil {
			return nil, err
		}
		if err := s.products.Save(ctx, p); err != nil {
			return nil, fmt.Errorf("stock: save product %s: %w", id, err)
		}
		if p.Stock == 0 {
			s.evict(ctx, id)
		}

		r, err := stock.NewReservation(orderID, id, qty, now)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}

	if err := s.reservations.SaveAll(ctx, rs); err != nil {
		return nil, fmt.Errorf("stock: save reservations: %w", err)
	}

	logger.Info("stock_reserved",
		observability.F("order_id", orderID),
		observability.F("lines", len(rs)),
	)
	return rs, nil
}

// Confirm finalizes the order's reservations after a successful payment.
// Missing reservations are an error; already settled rows are skipped, so a
// redelivered completion changes nothing.
func (s *Service) Confirm(ctx context.Context, orderID string) error {
	rs, err := s.reservations.FindByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("stock: find reservations: %w", err)
	}
	if len(rs) == 0 {
		return stock.ErrNoReservations
	}

	confirmed := 0
	for _, r := range rs {
		if !r.Confirm() {
			continue
		}
		if err := s.reservations.Update(ctx, r); err != nil {
			return fmt.Errorf("stock: update reservation %s: %w", r.ID, err)
		}
		confirmed++
	}

	logctx.FromOr(ctx, s.log).Info("stock_confirmed",
		observability.F("order_id", orderID),
		observability.F("confirmed", confirmed),
	)
	return nil
}

// Release puts reserved quantities back on the shelf during compensation.
// An order without reservations, or one whose rows are already settled, is a
// quiet no-op so repeated rollbacks cannot double-restock.
func (s *Service) Release(ctx context.Context, orderID string) ([]stock.Adjustment, error) {
	rs, err := s.reservations.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("stock: find reservations: %w", err)
	}
	if len(rs) == 0 {
		return nil, nil
	}

	var adjustments []stock.Adjustment
	for _, r := range rs {
		if !r.Release() {
			continue
		}

		release := s.locks.Lock("product:" + r.ProductID)
		p, err := s.products.Get(ctx, r.ProductID)
		if err != nil {
			release()
			return adjustments, fmt.Errorf("stock: load product %s: %w", r.ProductID, err)
		}
		if err := p.Increase(r.Quantity); err != nil {
			release()
			return adjustments, err
		}
		if err := s.products.Save(ctx, p); err != nil {
			release()
			return adjustments, fmt.Errorf("stock: save product %s: %w", r.ProductID, err)
		}
		current := p.Stock
		release()

		if err := s.reservations.Update(ctx, r); err != nil {
			return adjustments, fmt.Errorf("stock: update reservation %s: %w", r.ID, err)
		}

		adjustments = append(adjustments, stock.Adjustment{
			ProductID:    r.ProductID,
			Quantity:     r.Quantity,
			CurrentStock: current,
		})
		s.evict(ctx, r.ProductID)
	}

	if len(adjustments) > 0 && s.stream != nil {
		if err := s.stream.StockAdjusted(ctx, adjustments); err != nil {
			logctx.FromOr(ctx, s.log).Warn("stock_adjusted_stream_failed",
				observability.F("order_id", orderID),
				observability.F("error", err.Error()),
			)
		}
	}

	logctx.FromOr(ctx, s.log).Info("stock_released",
		observability.F("order_id", orderID),
		observability.F("restocked", len(adjustments)),
	)
	return adjustments, nil
}

// ListByOrder returns the reservation rows for an order.
func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]*stock.Reservation, error) {
	return s.reservations.FindByOrderID(ctx, orderID)
}

func (s *Service) evict(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.EvictProductDetail(ctx, productID); err != nil {
		logctx.FromOr(ctx, s.log).Warn("product_cache_evict_failed",
			observability.F("product_id", productID),
			observability.F("error", err.Error()),
		)
	}
}
