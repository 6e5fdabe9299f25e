package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable record of one match between a taker and a maker.
// The maker's resting price is always the trade price — price
// improvement always accrues to the taker.
type Trade struct {
	ID uint64

	Symbol   Symbol
	Sequence uint64 // this trade's position in the symbol's event order

	TakerOrderID uint64
	MakerOrderID uint64
	TakerSide    Side // the aggressor's side; the maker's side is the opposite

	TakerParticipant Participant
	MakerParticipant Participant

	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%d symbol=%s seq=%d taker=%d(%s) maker=%d(%s) price=%s qty=%s}",
		t.ID, t.Symbol, t.Sequence,
		t.TakerOrderID, t.TakerParticipant, t.MakerOrderID, t.MakerParticipant,
		t.Price, t.Quantity,
	)
}
