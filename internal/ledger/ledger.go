// Package ledger implements the exchange's authoritative balance store:
// the only shared mutable state touched by more than one symbol worker.
// Every operation is atomic with respect to concurrent callers;
// operations on disjoint (participant, asset) rows proceed in parallel,
// operations on the same row are totally ordered.
package ledger

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

type rowKey struct {
	participant common.Participant
	asset       common.Asset
}

// row is one (participant, asset) balance plus its own lock. Rows are
// created lazily on first touch and never removed: balance rows are
// durable for the life of the participant.
type row struct {
	mu      sync.Mutex
	balance common.Balance
}

// Ledger is the exchange's balance store. The zero value is not usable;
// construct with New.
type Ledger struct {
	mu   sync.RWMutex // protects the rows map itself, not individual rows
	rows map[rowKey]*row
}

func New() *Ledger {
	return &Ledger{rows: make(map[rowKey]*row)}
}

// rowFor returns the row for (participant, asset), creating it under a
// short-lived write lock if it does not yet exist. Once returned, the
// caller must lock the row itself before reading or writing its balance.
func (l *Ledger) rowFor(p common.Participant, a common.Asset) *row {
	key := rowKey{p, a}

	l.mu.RLock()
	r, ok := l.rows[key]
	l.mu.RUnlock()
	if ok {
		return r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok = l.rows[key]; ok {
		return r
	}
	r = &row{}
	l.rows[key] = r
	return r
}

// Get returns the current (available, locked) for a participant/asset
// pair. Reads of disjoint rows never serialize against each other.
func (l *Ledger) Get(p common.Participant, a common.Asset) common.Balance {
	r := l.rowFor(p, a)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balance
}

// Deposit credits available balance. It is a pure credit operation and
// never fails — it is the one leg of the engine that
// widens the conserved sum, and it is the deposit/withdrawal bridge's
// responsibility to journal it for replay.
func (l *Ledger) Deposit(p common.Participant, a common.Asset, qty decimal.Decimal) {
	r := l.rowFor(p, a)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balance.Available = r.balance.Available.Add(qty)
}

// Withdraw debits available balance, failing if insufficient.
func (l *Ledger) Withdraw(p common.Participant, a common.Asset, qty decimal.Decimal) error {
	r := l.rowFor(p, a)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balance.Available.LessThan(qty) {
		return common.Reject(common.InsufficientAvailable, "withdraw exceeds available")
	}
	r.balance.Available = r.balance.Available.Sub(qty)
	return nil
}

// Lock moves qty from available to locked, failing if insufficient.
func (l *Ledger) Lock(p common.Participant, a common.Asset, qty decimal.Decimal) error {
	r := l.rowFor(p, a)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balance.Available.LessThan(qty) {
		return common.Reject(common.InsufficientAvailable, "lock exceeds available")
	}
	r.balance.Available = r.balance.Available.Sub(qty)
	r.balance.Locked = r.balance.Locked.Add(qty)
	return nil
}

// Unlock moves qty from locked back to available, failing if insufficient.
func (l *Ledger) Unlock(p common.Participant, a common.Asset, qty decimal.Decimal) error {
	r := l.rowFor(p, a)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balance.Locked.LessThan(qty) {
		return common.Fatal(common.LedgerConservationViolation, "unlock exceeds locked")
	}
	r.balance.Locked = r.balance.Locked.Sub(qty)
	r.balance.Available = r.balance.Available.Add(qty)
	return nil
}

// Settle applies the four balance deltas of one trade atomically: the
// seller's locked base moves to the buyer's available base, and the
// buyer's locked quote moves to the seller's available quote. Both legs
// must already be locked by the caller before matching —
// a failure here means the caller violated that precondition and is
// reported as a fatal invariant violation, never a client rejection.
//
// The four rows are locked in a fixed global order — lexicographic by
// participant then by asset — so that two concurrent settles touching
// overlapping rows can never deadlock.
func (l *Ledger) Settle(buyer, seller common.Participant, base, quote common.Asset, baseQty, quoteQty decimal.Decimal) error {
	type leg struct {
		key rowKey
		row *row
	}
	legs := []leg{
		{rowKey{seller, base}, l.rowFor(seller, base)},
		{rowKey{buyer, base}, l.rowFor(buyer, base)},
		{rowKey{buyer, quote}, l.rowFor(buyer, quote)},
		{rowKey{seller, quote}, l.rowFor(seller, quote)},
	}
	// Dedupe in case buyer==seller on one leg (should never legitimately
	// happen post self-match-prevention, but locking the same mutex twice
	// would deadlock, so guard it regardless).
	sort.Slice(legs, func(i, j int) bool {
		if legs[i].key.participant != legs[j].key.participant {
			return legs[i].key.participant < legs[j].key.participant
		}
		return legs[i].key.asset < legs[j].key.asset
	})
	locked := make(map[*row]bool, 4)
	for _, lg := range legs {
		if locked[lg.row] {
			continue
		}
		lg.row.mu.Lock()
		locked[lg.row] = true
	}
	defer func() {
		for r := range locked {
			r.mu.Unlock()
		}
	}()

	sellerBase := l.rowFor(seller, base)
	buyerBase := l.rowFor(buyer, base)
	buyerQuote := l.rowFor(buyer, quote)
	sellerQuote := l.rowFor(seller, quote)

	if sellerBase.balance.Locked.LessThan(baseQty) {
		log.Error().Str("participant", string(seller)).Str("asset", string(base)).Msg("settle: seller base locked insufficient")
		return common.Fatal(common.SettleFailedAfterLock, "seller base locked insufficient")
	}
	if buyerQuote.balance.Locked.LessThan(quoteQty) {
		log.Error().Str("participant", string(buyer)).Str("asset", string(quote)).Msg("settle: buyer quote locked insufficient")
		return common.Fatal(common.SettleFailedAfterLock, "buyer quote locked insufficient")
	}

	sellerBase.balance.Locked = sellerBase.balance.Locked.Sub(baseQty)
	buyerBase.balance.Available = buyerBase.balance.Available.Add(baseQty)
	buyerQuote.balance.Locked = buyerQuote.balance.Locked.Sub(quoteQty)
	sellerQuote.balance.Available = sellerQuote.balance.Available.Add(quoteQty)
	return nil
}
