package olm

import (
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/ledger"
	"fenrir/internal/refdata"
)

// reservationFor computes the (asset, quantity) the OLM must lock before
// dispatching order. A buy locks quote at its limit price times quantity;
// a market-style buy (no limit price to anchor against) locks a
// conservative upper bound of the symbol's price band around the last
// trade instead. A sell always locks exactly its base quantity,
// regardless of execution price.
func reservationFor(o *common.Order, cfg refdata.SymbolConfig, lastTrade decimal.Decimal) (common.Asset, decimal.Decimal) {
	if !o.IsBuy() {
		return cfg.Base, o.TotalQuantity
	}
	if o.LimitPrice.IsPositive() {
		return cfg.Quote, o.LimitPrice.Mul(o.TotalQuantity)
	}
	band := decimal.NewFromInt(1).Add(cfg.PriceBandPercent)
	return cfg.Quote, band.Mul(lastTrade).Mul(o.TotalQuantity)
}

// applySettleToLock mirrors, on an order's own bookkeeping, the debit
// Ledger.Settle just applied to its locked balance for one trade: a
// buyer's locked quote drops by price*qty, a seller's locked base drops
// by qty. Keeping this in lock-step is what lets finalizeOrder later
// compute an accurate residual to release.
func applySettleToLock(o *common.Order, side common.Side, qty, price decimal.Decimal) {
	if side == common.Buy {
		o.LockedQuantity = o.LockedQuantity.Sub(qty.Mul(price))
		return
	}
	o.LockedQuantity = o.LockedQuantity.Sub(qty)
}

// finalizeOrder releases whatever part of an order's lock is no longer
// needed: the whole remainder once an order is terminal, or — for a
// resting limit-priced buy — the price-improvement margin between its
// limit price and what it actually paid. Market-style buys that are
// still pending (a registered trigger) keep their full reservation,
// since they convert to a market order on fire rather than resting.
func finalizeOrder(l *ledger.Ledger, o *common.Order) error {
	if o.LockedQuantity.IsZero() || o.LockedQuantity.IsNegative() {
		return nil
	}

	var needed decimal.Decimal
	switch {
	case o.Status.Terminal():
		needed = decimal.Zero
	case o.IsBuy() && o.LimitPrice.IsPositive():
		needed = o.LimitPrice.Mul(o.Remaining())
	case !o.IsBuy():
		needed = o.Remaining()
	default:
		needed = o.LockedQuantity
	}

	if needed.GreaterThanOrEqual(o.LockedQuantity) {
		return nil
	}
	delta := o.LockedQuantity.Sub(needed)
	if err := l.Unlock(o.Participant, o.LockedAsset, delta); err != nil {
		return common.Fatal(common.BookInconsistency, "residual unlock exceeded reservation: "+err.Error())
	}
	o.LockedQuantity = needed
	return nil
}
