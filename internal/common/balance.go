package common

import "github.com/shopspring/decimal"

// Balance is the Ledger's authoritative row for one (Participant, Asset)
// pair. Both fields are non-negative fixed-point decimals; their sum
// changes only via deposit/withdraw.
type Balance struct {
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// Total returns Available + Locked.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}
