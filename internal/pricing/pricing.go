// Package pricing resolves supplier part costs against quantity
// discount thresholds. All arithmetic is decimal; floats appear only at
// the storage and JSON boundaries.
package pricing

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrBelowMinimum    = errors.New("quantity is below the supplier's minimum order quantity")
	ErrNotMultiple     = errors.New("quantity is not a multiple of the supplier's order multiple")
)

// Break is one quantity discount threshold.
type Break struct {
	Quantity int
	Cost     decimal.Decimal
}

// Terms captures a supplier part's purchasing conditions.
type Terms struct {
	SinglePrice decimal.Decimal
	BaseCost    decimal.Decimal
	Multiple    int
	Minimum     int
	Breaks      []Break
}

// Quote is the resolved cost for a purchase of Quantity units. Quantity
// may be higher than requested when rounded up to the order multiple.
type Quote struct {
	Quantity int
	UnitCost decimal.Decimal
	BaseCost decimal.Decimal
	Total    decimal.Decimal
}

// UnitCost returns the per-unit cost at the given quantity. The largest
// break whose threshold does not exceed qty wins; with no qualifying
// break the single-unit price applies.
func (t Terms) UnitCost(qty int) decimal.Decimal {
	best := t.SinglePrice
	bestQty := 0
	for _, b := range t.Breaks {
		if b.Quantity <= qty && b.Quantity > bestQty {
			best = b.Cost
			bestQty = b.Quantity
		}
	}
	return best
}

// QuoteFor resolves the full cost of buying qty units. The base cost is
// charged once per order line regardless of quantity. When roundUp is
// set, quantities off the order multiple are rounded up to the next
// multiple; otherwise they are rejected.
func (t Terms) QuoteFor(qty int, roundUp bool) (Quote, error) {
	if qty <= 0 {
		return Quote{}, ErrInvalidQuantity
	}
	if t.Minimum > 1 && qty < t.Minimum {
		return Quote{}, ErrBelowMinimum
	}
	if t.Multiple > 1 && qty%t.Multiple != 0 {
		if !roundUp {
			return Quote{}, ErrNotMultiple
		}
		qty = ((qty / t.Multiple) + 1) * t.Multiple
	}

	unit := t.UnitCost(qty)
	total := t.BaseCost.Add(unit.Mul(decimal.NewFromInt(int64(qty))))
	return Quote{
		Quantity: qty,
		UnitCost: unit,
		BaseCost: t.BaseCost,
		Total:    total,
	}, nil
}

// SortBreaks orders breaks by ascending quantity. Handy for stable API
// output; resolution itself does not require sorted input.
func SortBreaks(breaks []Break) {
	sort.Slice(breaks, func(i, j int) bool {
		return breaks[i].Quantity < breaks[j].Quantity
	})
}
