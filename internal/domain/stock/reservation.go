package stock

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNoReservations = errors.New("no reservations for order")

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// ReservationTTL bounds how long reserved stock stays earmarked before a
// sweeper may reclaim it.
const ReservationTTL = 30 * time.Minute

// Reservation earmarks already-decremented stock for one order line. Status
// moves one way from RESERVED; Confirm and Release report whether they
// applied so repeated settlement attempts stay harmless.
type Reservation struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Status    ReservationStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

func NewReservation(orderID, productID string, qty int, now time.Time) (*Reservation, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return &Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  qty,
		Status:    ReservationReserved,
		CreatedAt: now,
		ExpiresAt: now.Add(ReservationTTL),
	}, nil
}

func (r *Reservation) Confirm() bool {
	if r.Status != ReservationReserved {
		return false
	}
	r.Status = ReservationConfirmed
	return true
}

func (r *Reservation) Release() bool {
	if r.Status != ReservationReserved {
		return false
	}
	r.Status = ReservationReleased
	return true
}

func (r *Reservation) Clone() *Reservation {
	c := *r
	return &c
}

// Adjustment reports a restock performed during release, with the stock level
// observed right after the increment.
type Adjustment struct {
	ProductID    string
	Quantity     int
	CurrentStock int
}
