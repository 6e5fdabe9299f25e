package ledger_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/journal"
	"fenrir/internal/ledger"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDepositWithdraw(t *testing.T) {
	l := ledger.New()
	l.Deposit("alice", "USD", d("100.00"))
	bal := l.Get("alice", "USD")
	assert.True(t, bal.Available.Equal(d("100.00")))
	assert.True(t, bal.Locked.IsZero())

	require.NoError(t, l.Withdraw("alice", "USD", d("40.00")))
	bal = l.Get("alice", "USD")
	assert.True(t, bal.Available.Equal(d("60.00")))

	err := l.Withdraw("alice", "USD", d("1000.00"))
	require.Error(t, err)
	var rej *common.ClientRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, common.InsufficientAvailable, rej.Kind)
}

func TestLockUnlock(t *testing.T) {
	l := ledger.New()
	l.Deposit("bob", "DEC", d("10"))

	require.NoError(t, l.Lock("bob", "DEC", d("4")))
	bal := l.Get("bob", "DEC")
	assert.True(t, bal.Available.Equal(d("6")))
	assert.True(t, bal.Locked.Equal(d("4")))

	err := l.Lock("bob", "DEC", d("100"))
	require.Error(t, err)

	require.NoError(t, l.Unlock("bob", "DEC", d("4")))
	bal = l.Get("bob", "DEC")
	assert.True(t, bal.Available.Equal(d("10")))
	assert.True(t, bal.Locked.IsZero())
}

func TestSettleMovesAllFourLegs(t *testing.T) {
	l := ledger.New()
	l.Deposit("buyer", "USD", d("10000.00"))
	l.Deposit("seller", "DEC", d("100"))

	require.NoError(t, l.Lock("buyer", "USD", d("500.00")))
	require.NoError(t, l.Lock("seller", "DEC", d("5")))

	require.NoError(t, l.Settle("buyer", "seller", "DEC", "USD", d("5"), d("500.00")))

	buyerUSD := l.Get("buyer", "USD")
	buyerDEC := l.Get("buyer", "DEC")
	sellerUSD := l.Get("seller", "USD")
	sellerDEC := l.Get("seller", "DEC")

	assert.True(t, buyerUSD.Available.Equal(d("9500.00")))
	assert.True(t, buyerUSD.Locked.IsZero())
	assert.True(t, buyerDEC.Available.Equal(d("5")))

	assert.True(t, sellerDEC.Available.IsZero())
	assert.True(t, sellerDEC.Locked.IsZero())
	assert.True(t, sellerUSD.Available.Equal(d("500.00")))
}

func TestSettleFailsFatalWhenUnderlocked(t *testing.T) {
	l := ledger.New()
	l.Deposit("buyer", "USD", d("10.00"))
	l.Deposit("seller", "DEC", d("10"))
	// Nothing locked: settle must refuse rather than let a balance go negative.
	err := l.Settle("buyer", "seller", "DEC", "USD", d("5"), d("50.00"))
	require.Error(t, err)
	var fatal *common.FatalError
	require.ErrorAs(t, err, &fatal)
}

// TestJournalReplayReproducesLedgerState verifies the replay-equivalence
// property journaled trades are supposed to guarantee: starting a fresh
// ledger from the same deposits and applying only the Lock-then-Settle
// consequence of each TradeExecuted record reproduces the live ledger's
// final balances exactly.
func TestJournalReplayReproducesLedgerState(t *testing.T) {
	liveLedger := ledger.New()
	liveLedger.Deposit("buyer", "USD", d("10000.00"))
	liveLedger.Deposit("seller", "DEC", d("100"))

	sink := journal.NewMemorySink(10)
	var seq uint64
	trade := func(buyer, seller common.Participant, qty, price decimal.Decimal, takerSide common.Side, taker, maker common.Participant) {
		notional := price.Mul(qty)
		require.NoError(t, liveLedger.Lock(buyer, "USD", notional))
		require.NoError(t, liveLedger.Lock(seller, "DEC", qty))
		require.NoError(t, liveLedger.Settle(buyer, seller, "DEC", "USD", qty, notional))
		seq++
		sink.Append(journal.Record{
			Sequence:         seq,
			Symbol:           "DEC/USD",
			Kind:             journal.TradeExecuted,
			Price:            price,
			Quantity:         qty,
			TakerSide:        takerSide,
			TakerParticipant: taker,
			MakerParticipant: maker,
		})
	}

	// Trade 1: buyer is the taker, crossing into seller's resting ask.
	trade("buyer", "seller", d("5"), d("100.00"), common.Buy, "buyer", "seller")
	// Trade 2: seller is the taker, crossing into buyer's resting bid.
	trade("buyer", "seller", d("3"), d("100.00"), common.Sell, "seller", "buyer")

	sink.Close()
	records := sink.Records()
	require.Len(t, records, 2)

	replayedLedger := ledger.New()
	replayedLedger.Deposit("buyer", "USD", d("10000.00"))
	replayedLedger.Deposit("seller", "DEC", d("100"))

	for _, rec := range records {
		require.Equal(t, journal.TradeExecuted, rec.Kind)
		var buyer, seller common.Participant
		if rec.TakerSide == common.Buy {
			buyer, seller = rec.TakerParticipant, rec.MakerParticipant
		} else {
			buyer, seller = rec.MakerParticipant, rec.TakerParticipant
		}
		notional := rec.Price.Mul(rec.Quantity)
		require.NoError(t, replayedLedger.Lock(buyer, "USD", notional))
		require.NoError(t, replayedLedger.Lock(seller, "DEC", rec.Quantity))
		require.NoError(t, replayedLedger.Settle(buyer, seller, "DEC", "USD", rec.Quantity, notional))
	}

	for _, p := range []common.Participant{"buyer", "seller"} {
		for _, a := range []common.Asset{"USD", "DEC"} {
			liveBal := liveLedger.Get(p, a)
			replayedBal := replayedLedger.Get(p, a)
			assert.True(t, liveBal.Available.Equal(replayedBal.Available), "%s/%s available", p, a)
			assert.True(t, liveBal.Locked.Equal(replayedBal.Locked), "%s/%s locked", p, a)
		}
	}
}

// TestConservationUnderConcurrentSettlement exercises conservation of
// total balances and non-negativity under concurrent settles that share
// rows.
func TestConservationUnderConcurrentSettlement(t *testing.T) {
	l := ledger.New()
	const participants = 6
	names := make([]common.Participant, participants)
	for i := range names {
		names[i] = common.Participant(rune('A' + i))
		l.Deposit(names[i], "USD", d("1000.00"))
		l.Deposit(names[i], "DEC", d("1000"))
	}

	totalBefore := func(asset common.Asset) decimal.Decimal {
		sum := decimal.Zero
		for _, n := range names {
			sum = sum.Add(l.Get(n, asset).Total())
		}
		return sum
	}
	usdBefore := totalBefore("USD")
	decBefore := totalBefore("DEC")

	var wg sync.WaitGroup
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		buyer := names[rng.Intn(participants)]
		seller := names[rng.Intn(participants)]
		if buyer == seller {
			continue
		}
		qty := d("1")
		price := d("10.00")
		wg.Add(1)
		go func(buyer, seller common.Participant) {
			defer wg.Done()
			if err := l.Lock(buyer, "USD", price); err != nil {
				return
			}
			if err := l.Lock(seller, "DEC", qty); err != nil {
				_ = l.Unlock(buyer, "USD", price)
				return
			}
			_ = l.Settle(buyer, seller, "DEC", "USD", qty, price)
		}(buyer, seller)
	}
	wg.Wait()

	assert.True(t, totalBefore("USD").Equal(usdBefore))
	assert.True(t, totalBefore("DEC").Equal(decBefore))
	for _, n := range names {
		for _, a := range []common.Asset{"USD", "DEC"} {
			bal := l.Get(n, a)
			assert.False(t, bal.Available.IsNegative())
			assert.False(t, bal.Locked.IsNegative())
		}
	}
}
