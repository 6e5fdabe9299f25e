package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the exchange's single representation of a submission, whether
// it is resting on a book, sitting in the advanced-order registry, or
// already terminal. Order types that do not use a given field leave it
// at its zero value (e.g. a plain limit order's StopPrice is zero).
type Order struct {
	ID          uint64 // monotonic within Symbol, assigned at ingress
	ClientID    string // optional, caller-assigned, unique per active order per participant
	Participant Participant
	Symbol      Symbol
	Side        Side
	Type        OrderType
	TIF         TimeInForce
	Status      OrderStatus

	LimitPrice   decimal.Decimal // zero for market orders
	StopPrice    decimal.Decimal // stop / stop-limit / take-profit trigger
	TrailAmount  decimal.Decimal // trailing-stop, absolute (mutually exclusive w/ TrailPercent)
	TrailPercent decimal.Decimal // trailing-stop, fraction of price (0..1)

	TotalQuantity     decimal.Decimal
	FilledQuantity    decimal.Decimal
	DisplayedQuantity decimal.Decimal // iceberg: visible slice size

	Sequence    uint64 // canonical arrival order within Symbol; the sole priority key
	SubmittedAt time.Time
	ExchAt      time.Time // time the order reached the symbol worker
	ExpireAt    time.Time // GTD soft expiry, zero if unset

	ParentOrderID uint64 // iceberg slice / OCO leg backreference, 0 if none
	OCOSiblingID  uint64 // the other leg of an OCO pair, 0 if none

	// LockedAsset/LockedQuantity record what this order reserved in the
	// Ledger at submission or registration time, so residual unlock
	// always knows exactly what to give back.
	LockedAsset    Asset
	LockedQuantity decimal.Decimal
}

// Remaining returns TotalQuantity - FilledQuantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.TotalQuantity.Sub(o.FilledQuantity)
}

// IsBuy is a readability helper over Side.
func (o *Order) IsBuy() bool { return o.Side == Buy }

func (o Order) String() string {
	return fmt.Sprintf(
		"Order{id=%d client=%q participant=%q symbol=%s side=%s type=%s tif=%s status=%s "+
			"limit=%s stop=%s total=%s filled=%s seq=%d}",
		o.ID, o.ClientID, o.Participant, o.Symbol, o.Side, o.Type, o.TIF, o.Status,
		o.LimitPrice, o.StopPrice, o.TotalQuantity, o.FilledQuantity, o.Sequence,
	)
}
