package stock

import "context"

type ProductRepository interface {
	Get(ctx context.Context, id string) (*Product, error)
	Save(ctx context.Context, p *Product) error
}

type ReservationRepository interface {
	SaveAll(ctx context.Context, rs []*Reservation) error
	FindByOrderID(ctx context.Context, orderID string) ([]*Reservation, error)
	Update(ctx context.Context, r *Reservation) error
}
