package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"fenrir/internal/common"
)

// PriceLevel is every resting order at a single price on one side of one
// book: the price, the FIFO queue of orders in strict arrival order, and
// the aggregate resting quantity, kept in lock-step with the queue.
type PriceLevel struct {
	Price     decimal.Decimal
	Orders    []*common.Order
	aggregate decimal.Decimal
}

// Aggregate returns the sum of remaining quantities of queued orders.
func (lvl *PriceLevel) Aggregate() decimal.Decimal { return lvl.aggregate }

func (lvl *PriceLevel) push(o *common.Order) {
	lvl.Orders = append(lvl.Orders, o)
	lvl.aggregate = lvl.aggregate.Add(o.Remaining())
}

// dropFront removes the first n orders from the queue (they have been
// fully consumed) without touching the aggregate, which callers adjust
// fill-by-fill as they go.
func (lvl *PriceLevel) dropFront(n int) {
	lvl.Orders = lvl.Orders[n:]
}

// removeAt removes the order at queue index i (used by Cancel, which can
// remove from the middle of a level, unlike the matching loop which only
// ever consumes from the front).
func (lvl *PriceLevel) removeAt(i int) {
	lvl.aggregate = lvl.aggregate.Sub(lvl.Orders[i].Remaining())
	lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
}

func (lvl *PriceLevel) recordFill(idx int, qty decimal.Decimal) {
	lvl.Orders[idx].FilledQuantity = lvl.Orders[idx].FilledQuantity.Add(qty)
	lvl.aggregate = lvl.aggregate.Sub(qty)
}

// decrementResting shrinks a resting order's total quantity by qty
// without recording a fill, used by the decrement-and-cancel self-match
// policy where no trade actually executes.
func (lvl *PriceLevel) decrementResting(idx int, qty decimal.Decimal) {
	lvl.Orders[idx].TotalQuantity = lvl.Orders[idx].TotalQuantity.Sub(qty)
	lvl.aggregate = lvl.aggregate.Sub(qty)
}

// PriceLevels is a btree of price levels for one side of one book,
// ordered by the Less function supplied at construction (bids descending,
// asks ascending).
type PriceLevels = btree.BTreeG[*PriceLevel]

func newBidLevels() *PriceLevels {
	return btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
}

func newAskLevels() *PriceLevels {
	return btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
}
