// Package book implements the per-symbol price-time priority order book:
// two sorted sides of price levels, each a FIFO queue of resting orders,
// matched against an incoming order until either side is exhausted. It
// is pure in-memory logic and never performs I/O. Cancel and Modify fail
// with NotFound for an id that is not resting; Add reports post-only,
// fill-or-kill and self-match rejections as *common.ClientRejection.
//
package book

import (
	"time"

	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// NotFound is returned by Cancel and Modify when the order id does not
// name a currently resting order.
type NotFound struct{ OrderID uint64 }

func (e *NotFound) Error() string { return "order not found" }

type indexEntry struct {
	side  common.Side
	price decimal.Decimal
}

// Book is one symbol's order book.
type Book struct {
	Symbol common.Symbol

	Bids *PriceLevels
	Asks *PriceLevels

	index map[uint64]indexEntry

	SelfMatchPolicy common.SelfMatchPolicy

	LastTradePrice decimal.Decimal
	lastTradeSeq   uint64
}

// New creates an empty book for a symbol with the given self-match
// prevention policy. Policy is per symbol; default is cancel-incoming.
func New(symbol common.Symbol, smp common.SelfMatchPolicy) *Book {
	return &Book{
		Symbol:          symbol,
		Bids:            newBidLevels(),
		Asks:            newAskLevels(),
		index:           make(map[uint64]indexEntry),
		SelfMatchPolicy: smp,
	}
}

func (b *Book) levelsFor(side common.Side) *PriceLevels {
	if side == common.Buy {
		return b.Bids
	}
	return b.Asks
}

func (b *Book) oppositeLevels(side common.Side) *PriceLevels {
	return b.levelsFor(side.Opposite())
}

// BestBid returns the best (highest) resting bid price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	lvl, ok := b.Bids.Min()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

// BestAsk returns the best (lowest) resting ask price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	lvl, ok := b.Asks.Min()
	if !ok {
		return decimal.Zero, false
	}
	return lvl.Price, true
}

// DepthLevel is one read-only row of a Depth snapshot.
type DepthLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Depth returns up to n price levels per side, best price first. It is
// recomputed from the book on demand rather than served from a cache.
func (b *Book) Depth(n int) (bids, asks []DepthLevel) {
	collect := func(levels *PriceLevels) []DepthLevel {
		out := make([]DepthLevel, 0, n)
		levels.Scan(func(lvl *PriceLevel) bool {
			out = append(out, DepthLevel{Price: lvl.Price, Quantity: lvl.Aggregate()})
			return len(out) < n
		})
		return out
	}
	return collect(b.Bids), collect(b.Asks)
}

// crossable reports whether a resting level at restingPrice can trade
// against an incoming order of side/limitPrice.
// A market order (zero/unset limit) is crossable at any price.
func crossable(side common.Side, isMarket bool, limitPrice, restingPrice decimal.Decimal) bool {
	if isMarket {
		return true
	}
	if side == common.Buy {
		return restingPrice.LessThanOrEqual(limitPrice)
	}
	return restingPrice.GreaterThanOrEqual(limitPrice)
}

// simulateFillable computes, without mutating the book, how much of
// order would actually fill under its self-match-prevention policy. This
// is what FOK's pre-match feasibility check must use
// instead of raw opposite-side depth: under cancel-incoming, a
// same-participant order blocks everything behind it at that point in
// price-time order, exactly as the real matching loop would stop there;
// under cancel-resting/decrement-and-cancel, self orders are transparent
// and never block, so they are simply excluded from the count.
func (b *Book) simulateFillable(order *common.Order) decimal.Decimal {
	isMarket := order.Type == common.Market
	need := order.Remaining()
	sum := decimal.Zero
	b.oppositeLevels(order.Side).Scan(func(lvl *PriceLevel) bool {
		if !crossable(order.Side, isMarket, order.LimitPrice, lvl.Price) {
			return false
		}
		for _, o := range lvl.Orders {
			if sum.GreaterThanOrEqual(need) {
				return false
			}
			if o.Participant == order.Participant {
				if b.SelfMatchPolicy == common.CancelIncoming {
					return false
				}
				continue
			}
			sum = sum.Add(o.Remaining())
		}
		return true
	})
	return sum
}

// Add matches order against the opposite side until either it or the
// crossable opposite liquidity is exhausted, then applies the order's
// TIF/type rest policy to whatever quantity remains.
// order is mutated in place (FilledQuantity, Status); the returned trades
// are in execution order.
func (b *Book) Add(order *common.Order, now time.Time) ([]common.Trade, error) {
	order.ExchAt = now

	if order.Type == common.PostOnly {
		if b.wouldCross(order) {
			order.Status = common.StatusRejected
			return nil, common.Reject(common.PostOnlyWouldCross, "post-only order would cross the book")
		}
	}

	if order.TIF == common.FOK {
		if b.simulateFillable(order).LessThan(order.Remaining()) {
			order.Status = common.StatusRejected
			return nil, common.Reject(common.FOKUnfillable, "insufficient crossable liquidity for fill-or-kill")
		}
	}

	trades, selfMatchStop := b.match(order, now)

	if selfMatchStop && order.FilledQuantity.IsZero() {
		order.Status = common.StatusRejected
		return trades, common.Reject(common.SelfMatchRejected, "incoming order would only self-match")
	}

	remaining := order.Remaining()
	switch {
	case remaining.IsZero() && len(trades) > 0:
		// Genuinely executed down to nothing.
		order.Status = common.StatusFilled
	case remaining.IsZero():
		// Emptied out by decrement-and-cancel without ever trading.
		order.Status = common.StatusCancelled
	case order.Type == common.Market || order.TIF == common.IOC || selfMatchStop:
		// Market/IOC/self-match-halted remainders never rest.
		order.Status = common.StatusCancelled
	default:
		// post-only, limit, GTC/DAY/GTD: the remainder rests.
		b.rest(order)
		if order.FilledQuantity.IsPositive() {
			order.Status = common.StatusPartiallyFilled
		} else {
			order.Status = common.StatusNew
		}
	}

	return trades, nil
}

// wouldCross reports whether any part of order would immediately trade,
// used by the post-only check.
func (b *Book) wouldCross(order *common.Order) bool {
	lvl, ok := b.oppositeLevels(order.Side).Min()
	if !ok {
		return false
	}
	return crossable(order.Side, order.Type == common.Market, order.LimitPrice, lvl.Price)
}

// match is the price-time priority crossing loop.
// It returns the trades produced and whether matching stopped early
// because of a cancel-incoming self-match.
func (b *Book) match(order *common.Order, now time.Time) ([]common.Trade, bool) {
	var trades []common.Trade
	opposite := b.oppositeLevels(order.Side)
	isMarket := order.Type == common.Market

	for order.Remaining().IsPositive() {
		lvl, ok := opposite.MinMut()
		if !ok {
			break
		}
		if !crossable(order.Side, isMarket, order.LimitPrice, lvl.Price) {
			break
		}

		consumed := 0
		haltSelfMatch := false
		for consumed < len(lvl.Orders) && order.Remaining().IsPositive() {
			resting := lvl.Orders[consumed]

			if resting.Participant == order.Participant {
				switch b.SelfMatchPolicy {
				case common.CancelIncoming:
					haltSelfMatch = true
				case common.CancelResting:
					resting.Status = common.StatusCancelled
					delete(b.index, resting.ID)
					lvl.removeAt(consumed)
					continue // re-examine the same index, now the next order
				case common.DecrementAndCancel:
					// Both sides shrink by the overlapping quantity; no
					// trade is recorded and neither FilledQuantity moves,
					// since nothing actually executed.
					dec := decimal.Min(order.Remaining(), resting.Remaining())
					order.TotalQuantity = order.TotalQuantity.Sub(dec)
					lvl.decrementResting(consumed, dec)
					if resting.Remaining().IsZero() {
						resting.Status = common.StatusCancelled
						delete(b.index, resting.ID)
						lvl.removeAt(consumed)
						continue
					}
				}
				if haltSelfMatch {
					break
				}
				continue
			}

			qty := decimal.Min(order.Remaining(), resting.Remaining())
			tradePrice := resting.LimitPrice // maker price-improvement rule

			order.FilledQuantity = order.FilledQuantity.Add(qty)
			lvl.recordFill(consumed, qty)

			trade := common.Trade{
				Symbol:           b.Symbol,
				TakerOrderID:     order.ID,
				MakerOrderID:     resting.ID,
				TakerSide:        order.Side,
				TakerParticipant: order.Participant,
				MakerParticipant: resting.Participant,
				Price:            tradePrice,
				Quantity:         qty,
				Timestamp:        now,
			}
			b.lastTradeSeq++
			trade.ID = b.lastTradeSeq
			trade.Sequence = b.lastTradeSeq
			b.LastTradePrice = tradePrice
			trades = append(trades, trade)

			if resting.Remaining().IsZero() {
				resting.Status = common.StatusFilled
				delete(b.index, resting.ID)
				consumed++
			}
		}

		if consumed > 0 {
			lvl.dropFront(consumed)
		}
		if len(lvl.Orders) == 0 {
			opposite.Delete(lvl)
		}
		if haltSelfMatch {
			return trades, true
		}
	}
	return trades, false
}

// rest inserts an order's remaining quantity at the tail of its price
// level, preserving the FIFO arrival order.
func (b *Book) rest(order *common.Order) {
	levels := b.levelsFor(order.Side)
	key := &PriceLevel{Price: order.LimitPrice}
	lvl, ok := levels.GetMut(key)
	if !ok {
		lvl = &PriceLevel{Price: order.LimitPrice}
		levels.Set(lvl)
	}
	lvl.push(order)
	b.index[order.ID] = indexEntry{side: order.Side, price: order.LimitPrice}
}

// Cancel removes a resting order from the book.
func (b *Book) Cancel(orderID uint64) (*common.Order, error) {
	entry, ok := b.index[orderID]
	if !ok {
		return nil, &NotFound{OrderID: orderID}
	}
	levels := b.levelsFor(entry.side)
	lvl, ok := levels.GetMut(&PriceLevel{Price: entry.price})
	if !ok {
		return nil, &NotFound{OrderID: orderID}
	}
	for i, o := range lvl.Orders {
		if o.ID == orderID {
			lvl.removeAt(i)
			delete(b.index, orderID)
			if len(lvl.Orders) == 0 {
				levels.Delete(lvl)
			}
			o.Status = common.StatusCancelled
			return o, nil
		}
	}
	return nil, &NotFound{OrderID: orderID}
}

// Modify applies a quantity decrease and/or price change to a resting
// order. A quantity-only decrease preserves time priority and adjusts
// the resting quantity downward in place. A price change is
// cancel-then-add and loses time priority. A new quantity above the
// order's remaining quantity is refused with InvalidModify; the OLM also
// rejects it before reaching here.
func (b *Book) Modify(orderID uint64, newPrice *decimal.Decimal, newQty *decimal.Decimal, now time.Time) (*common.Order, []common.Trade, error) {
	entry, ok := b.index[orderID]
	if !ok {
		return nil, nil, &NotFound{OrderID: orderID}
	}
	levels := b.levelsFor(entry.side)
	lvl, ok := levels.GetMut(&PriceLevel{Price: entry.price})
	if !ok {
		return nil, nil, &NotFound{OrderID: orderID}
	}

	idx := -1
	for i, o := range lvl.Orders {
		if o.ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, &NotFound{OrderID: orderID}
	}
	order := lvl.Orders[idx]

	priceChanged := newPrice != nil && !newPrice.Equal(order.LimitPrice)
	if !priceChanged && newQty != nil {
		if newQty.GreaterThan(order.Remaining()) {
			return nil, nil, common.Reject(common.InvalidModify, "modify cannot increase quantity")
		}
		// In-place reduction: time priority preserved.
		delta := order.Remaining().Sub(*newQty)
		order.TotalQuantity = order.TotalQuantity.Sub(delta)
		lvl.aggregate = lvl.aggregate.Sub(delta)
		return order, nil, nil
	}

	// Price change (or both): cancel-then-add, losing time priority.
	lvl.removeAt(idx)
	delete(b.index, orderID)
	if len(lvl.Orders) == 0 {
		levels.Delete(lvl)
	}
	if newPrice != nil {
		order.LimitPrice = *newPrice
	}
	if newQty != nil {
		if newQty.GreaterThan(order.Remaining()) {
			return nil, nil, common.Reject(common.InvalidModify, "modify cannot increase quantity")
		}
		order.TotalQuantity = order.FilledQuantity.Add(*newQty)
	}
	order.Status = common.StatusNew
	trades, err := b.Add(order, now)
	return order, trades, err
}
