package stock

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

// Decrease takes qty units off the shelf. Callers must hold the product lock.
func (p *Product) Decrease(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if p.Stock < qty {
		return ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func (p *Product) Increase(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += qty
	return nil
}

func (p *Product) Clone() *Product {
	c := *p
	return &c
}
