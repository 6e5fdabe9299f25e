// Package common holds the core data model shared by the ledger, the
// order book and the order lifecycle manager: symbols, participants,
// assets, the order/trade/balance records and the tagged-variant enums
// that describe them.
package common

import "fmt"

// Symbol identifies a tradeable instrument, e.g. "DEC/USD".
type Symbol string

// Participant identifies an account holder. It is the key space for
// both balances and orders.
type Participant string

// Asset identifies a settlement currency or token, e.g. "USD" or "DEC".
type Asset string

// Side is which side of the book an order rests on or crosses into.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is the tagged variant of an order's matching/trigger semantics.
type OrderType int

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
	TrailingStop
	TakeProfit
	Iceberg
	PostOnly
	OCO
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop-limit"
	case TrailingStop:
		return "trailing-stop"
	case TakeProfit:
		return "take-profit"
	case Iceberg:
		return "iceberg"
	case PostOnly:
		return "post-only"
	case OCO:
		return "oco"
	default:
		return fmt.Sprintf("order-type(%d)", int(t))
	}
}

// IsAdvanced reports whether this is an advanced order type. Stop,
// stop-limit, trailing-stop and take-profit orders are held in the
// advanced-order registry instead of resting on the book; an OCO leg
// rests on the book as a limit order with its pairing kept in the registry.
func (t OrderType) IsAdvanced() bool {
	switch t {
	case Stop, StopLimit, TrailingStop, TakeProfit, OCO:
		return true
	default:
		return false
	}
}

// TimeInForce is the persistence policy of an order.
type TimeInForce int

const (
	GTC TimeInForce = iota // good-till-cancel
	IOC                    // immediate-or-cancel
	FOK                    // fill-or-kill
	DAY                    // cancelled at end of session
	GTD                    // good-till-date (soft expiry)
)

func (tif TimeInForce) String() string {
	switch tif {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case DAY:
		return "DAY"
	case GTD:
		return "GTD"
	default:
		return fmt.Sprintf("tif(%d)", int(tif))
	}
}

// Restable reports whether an order of this TIF may ever rest on the book.
func (tif TimeInForce) Restable() bool {
	return tif == GTC || tif == DAY || tif == GTD
}

// OrderStatus is the tagged variant of an order's lifecycle state.
type OrderStatus int

const (
	StatusNew OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
	StatusExpired
	StatusPendingTrigger
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPartiallyFilled:
		return "partially-filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	case StatusPendingTrigger:
		return "pending-trigger"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Resting reports whether an order in this status may be sitting on a book.
func (s OrderStatus) Resting() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// SelfMatchPolicy governs what happens when an incoming order would trade
// against a resting order from the same participant.
type SelfMatchPolicy int

const (
	// CancelIncoming cancels the aggressor and lets the resting order stand.
	CancelIncoming SelfMatchPolicy = iota
	// CancelResting cancels the resting (maker) order and lets the
	// aggressor continue matching against the book.
	CancelResting
	// DecrementAndCancel cancels whichever side is smaller and decrements
	// the larger side by the smaller's quantity, without a trade.
	DecrementAndCancel
)

func (p SelfMatchPolicy) String() string {
	switch p {
	case CancelIncoming:
		return "cancel-incoming"
	case CancelResting:
		return "cancel-resting"
	case DecrementAndCancel:
		return "decrement-and-cancel"
	default:
		return fmt.Sprintf("smp(%d)", int(p))
	}
}

// TriggerSource names a price feed for advanced-order triggers. The OLM
// does not read it: triggers are always evaluated against the last trade
// price, and no mark-price evaluation exists.
type TriggerSource int

const (
	LastTrade TriggerSource = iota
	Mark
)

func (t TriggerSource) String() string {
	switch t {
	case LastTrade:
		return "last-trade"
	case Mark:
		return "mark"
	default:
		return fmt.Sprintf("trigger-source(%d)", int(t))
	}
}
