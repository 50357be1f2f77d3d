package order

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity  = errors.New("order: quantity must be greater than zero")
	ErrInvalidUnitPrice = errors.New("order: unit price must be greater than zero")
)

// Item is an immutable order line: product, quantity, and the unit price
// captured at ordering time.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func NewItem(productID string, quantity int, unitPrice decimal.Decimal) (Item, error) {
	if productID == "" {
		return Item{}, errors.New("order: product id is required")
	}
	if quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	if unitPrice.LessThanOrEqual(decimal.Zero) {
		return Item{}, ErrInvalidUnitPrice
	}
	return Item{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice}, nil
}

func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Items []Item

func (is Items) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, i := range is {
		total = total.Add(i.Total())
	}
	return total
}

// QuantityByProduct aggregates quantities per product id.
func (is Items) QuantityByProduct() map[string]int {
	m := make(map[string]int, len(is))
	for _, i := range is {
		m[i.ProductID] += i.Quantity
	}
	return m
}

// ProductIDs returns the distinct product ids in ascending order, which is
// also the required lock-acquisition order.
func (is Items) ProductIDs() []string {
	seen := make(map[string]struct{}, len(is))
	ids := make([]string, 0, len(is))
	for _, i := range is {
		if _, ok := seen[i.ProductID]; ok {
			continue
		}
		seen[i.ProductID] = struct{}{}
		ids = append(ids, i.ProductID)
	}
	sort.Strings(ids)
	return ids
}
