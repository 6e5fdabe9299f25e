package olm

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/journal"
	"fenrir/internal/ledger"
	"fenrir/internal/refdata"
)

const testSymbol common.Symbol = "DEC/USD"
const base common.Asset = "DEC"
const quote common.Asset = "USD"

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// generousLimits relies on DefaultRiskLimits (20/s, 100000/day), which is
// headroom enough for every test below except the dedicated rate-limit
// test, which builds its own tight per-participant override.
func generousLimits() *refdata.LimitsTable {
	return refdata.NewLimitsTable()
}

func newTestOLM(t *testing.T) (*OLM, *ledger.Ledger, *journal.MemorySink) {
	t.Helper()
	cfg := refdata.SymbolConfig{
		Symbol:           testSymbol,
		Base:             base,
		Quote:            quote,
		TickSize:         d("0.01"),
		LotSize:          d("0.001"),
		MinQty:           d("0.001"),
		MaxQty:           d("1000"),
		PriceBandPercent: d("0.5"),
		SelfMatchPolicy:  common.CancelIncoming,
	}
	catalog := refdata.NewCatalog(cfg)
	l := ledger.New()
	sink := journal.NewMemorySink(1024)
	o := New(catalog, generousLimits(), l, sink)
	return o, l, sink
}

func fund(l *ledger.Ledger, p common.Participant, asset common.Asset, qty decimal.Decimal) {
	l.Deposit(p, asset, qty)
}

func TestSubmit_RestingLimitOrder(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", quote, d("10000"))

	order, trades, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, common.StatusNew, order.Status)

	bal := l.Get("alice", quote)
	assert.True(t, bal.Locked.Equal(d("1000")), "expected 1000 locked, got %s", bal.Locked)
	assert.True(t, bal.Available.Equal(d("9000")))
}

func TestSubmit_CrossingOrderSettlesAtMakerPrice(t *testing.T) {
	o, l, sink := newTestOLM(t)
	fund(l, "alice", base, d("100"))
	fund(l, "bob", quote, d("100000"))

	_, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Sell,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)

	taker, trades, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "bob",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("105"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("100")), "trade must clear at the maker's price")
	assert.Equal(t, common.StatusFilled, taker.Status)

	// Bob locked 105*10=1050 up front but only 100*10=1000 settled; the
	// 50 of price-improvement margin must come back as available.
	bobQuote := l.Get("bob", quote)
	assert.True(t, bobQuote.Locked.IsZero(), "bob's remaining lock should be fully released: %s", bobQuote.Locked)
	assert.True(t, bobQuote.Available.Equal(d("99000")), "bob available: %s", bobQuote.Available)

	aliceBase := l.Get("alice", base)
	assert.True(t, aliceBase.Locked.IsZero())
	assert.True(t, aliceBase.Available.Equal(d("90")))

	bobBase := l.Get("bob", base)
	assert.True(t, bobBase.Available.Equal(d("10")))

	aliceQuote := l.Get("alice", quote)
	assert.True(t, aliceQuote.Available.Equal(d("1000")))

	sink.Close()
	var sawTrade bool
	for _, rec := range sink.Records() {
		if rec.Kind == journal.TradeExecuted {
			sawTrade = true
		}
	}
	assert.True(t, sawTrade, "expected a TRADE journal record")
}

func TestSubmit_SelfMatchCancelsIncoming(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", base, d("100"))
	fund(l, "alice", quote, d("100000"))

	_, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Sell,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)

	incoming, trades, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("105"),
		Quantity:    d("10"),
	})
	require.Error(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, common.StatusRejected, incoming.Status)

	bal := l.Get("alice", quote)
	assert.True(t, bal.Locked.IsZero(), "rejected incoming order must fully release its reservation")
}

func TestSubmit_DuplicateClientOrderIDRejected(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", quote, d("10000"))

	req := SubmitRequest{
		Participant:   "alice",
		Symbol:        testSymbol,
		Side:          common.Buy,
		Type:          common.Limit,
		TIF:           common.GTC,
		ClientOrderID: "client-1",
		LimitPrice:    d("100"),
		Quantity:      d("1"),
	}
	_, _, err := o.Submit(context.Background(), req)
	require.NoError(t, err)

	_, _, err = o.Submit(context.Background(), req)
	require.Error(t, err)
	rej, ok := err.(*common.ClientRejection)
	require.True(t, ok)
	assert.Equal(t, common.DuplicateClientID, rej.Kind)
}

func TestSubmit_InsufficientBalanceRejected(t *testing.T) {
	o, _, _ := newTestOLM(t)

	_, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "poor",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.Error(t, err)
	rej, ok := err.(*common.ClientRejection)
	require.True(t, ok)
	assert.Equal(t, common.InsufficientAvailable, rej.Kind)
}

func TestSubmit_NotionalCapExceededRejected(t *testing.T) {
	cfg := refdata.SymbolConfig{
		Symbol:   testSymbol,
		Base:     base,
		Quote:    quote,
		TickSize: d("0.01"),
		LotSize:  d("0.001"),
		MinQty:   d("0.001"),
		MaxQty:   d("1000"),
	}
	catalog := refdata.NewCatalog(cfg)
	l := ledger.New()
	sink := journal.NewMemorySink(1024)
	limits := refdata.NewLimitsTable()
	limits.SetParticipant("alice", refdata.RiskLimits{
		OrdersPerSecond: 20,
		OrdersPerDay:    100000,
		NotionalCap:     d("500"),
	})
	o := New(catalog, limits, l, sink)
	fund(l, "alice", quote, d("100000"))

	_, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"), // notional 1000 > 500 cap
	})
	require.Error(t, err)
	rej, ok := err.(*common.ClientRejection)
	require.True(t, ok)
	assert.Equal(t, common.NotionalCapExceeded, rej.Kind)

	// A quantity within the cap is accepted.
	_, _, err = o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("4"), // notional 400 <= 500 cap
	})
	require.NoError(t, err)
}

func TestCancel_ReleasesLockedBalance(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", quote, d("10000"))

	order, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)

	cancelled, err := o.Cancel(context.Background(), testSymbol, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, cancelled.Status)

	bal := l.Get("alice", quote)
	assert.True(t, bal.Locked.IsZero())
	assert.True(t, bal.Available.Equal(d("10000")))

	_, err = o.Cancel(context.Background(), testSymbol, "alice", order.ID)
	assert.Error(t, err, "cancelling an already-terminal order must be rejected, not a silent no-op")
}

func TestCancel_WrongOwnerRejected(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", quote, d("10000"))

	order, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)

	_, err = o.Cancel(context.Background(), testSymbol, "mallory", order.ID)
	require.Error(t, err)
	rej, ok := err.(*common.ClientRejection)
	require.True(t, ok)
	assert.Equal(t, common.Unauthorized, rej.Kind)
}

func TestModify_QuantityDecreaseReleasesResidualLock(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", quote, d("10000"))

	order, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)

	newQty := d("4")
	updated, trades, err := o.Modify(context.Background(), testSymbol, ModifyRequest{
		Participant: "alice",
		OrderID:     order.ID,
		NewQty:      &newQty,
	})
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.True(t, updated.Remaining().Equal(d("4")))

	bal := l.Get("alice", quote)
	assert.True(t, bal.Locked.Equal(d("400")), "locked should shrink to match the new quantity: %s", bal.Locked)
	assert.True(t, bal.Available.Equal(d("9600")))
}

func TestStopOrder_TriggersAndFillsAsMarket(t *testing.T) {
	o, l, sink := newTestOLM(t)
	fund(l, "alice", base, d("100"))
	fund(l, "bob", quote, d("100000"))
	fund(l, "carol", quote, d("100000"))

	// Establish a last-trade price first: a stop order with no limit
	// price sizes its reservation off it, and there is nothing to size
	// against before any trade has occurred.
	_, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Sell,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("5"),
	})
	require.NoError(t, err)
	_, _, err = o.Submit(context.Background(), SubmitRequest{
		Participant: "bob",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("5"),
	})
	require.NoError(t, err)

	// Carol parks a stop-buy that should fire once the price trades at
	// or above 110.
	stop, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "carol",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Stop,
		TIF:         common.GTC,
		StopPrice:   d("110"),
		Quantity:    d("5"),
	})
	require.NoError(t, err)
	assert.Equal(t, common.StatusPendingTrigger, stop.Status)

	// Alice rests another ask at 110; Bob crosses it, setting last trade
	// to 110 and firing Carol's stop.
	_, _, err = o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Sell,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("110"),
		Quantity:    d("20"),
	})
	require.NoError(t, err)

	_, _, err = o.Submit(context.Background(), SubmitRequest{
		Participant: "bob",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("110"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)

	refreshed, err := o.Query(context.Background(), testSymbol, "carol", stop.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusFilled, refreshed.Status, "the stop should have fired and filled against alice's remaining ask")

	sink.Close()
	var sawTrigger bool
	for _, rec := range sink.Records() {
		if rec.Kind == journal.Triggered && rec.OrderID == stop.ID {
			sawTrigger = true
		}
	}
	assert.True(t, sawTrigger, "expected a TRIGGERED journal record before the stop's own fill")
}

func TestIceberg_ReplenishesNextSliceAfterFill(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", base, d("100"))
	fund(l, "bob", quote, d("100000"))

	parent, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant:       "alice",
		Symbol:            testSymbol,
		Side:              common.Sell,
		Type:              common.Iceberg,
		TIF:               common.GTC,
		LimitPrice:        d("100"),
		Quantity:          d("30"),
		DisplayedQuantity: d("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, common.StatusNew, parent.Status)

	// First bite: should fill the visible 10 and replenish another 10.
	_, trades, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "bob",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(d("10")))

	refreshed, err := o.Query(context.Background(), testSymbol, "alice", parent.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusPartiallyFilled, refreshed.Status)
	assert.True(t, refreshed.FilledQuantity.Equal(d("10")))

	// The book should still show 10 resting (the replenished slice), not 20.
	_, asks := o.workers[testSymbol].book.Depth(5)
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Quantity.Equal(d("10")), "iceberg must only ever show its displayed slice: %s", asks[0].Quantity)
}

func TestOCO_FillingOneLegCancelsTheOther(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", base, d("100"))
	fund(l, "bob", quote, d("100000"))

	takeProfit, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Sell,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("120"),
		Quantity:    d("5"),
	})
	require.NoError(t, err)

	stopLoss, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant:  "alice",
		Symbol:       testSymbol,
		Side:         common.Sell,
		Type:         common.Stop,
		TIF:          common.GTC,
		StopPrice:    d("80"),
		Quantity:     d("5"),
		OCOSiblingID: takeProfit.ID,
	})
	require.NoError(t, err)

	_, trades, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "bob",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("120"),
		Quantity:    d("5"),
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)

	refreshedStop, err := o.Query(context.Background(), testSymbol, "alice", stopLoss.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, refreshedStop.Status, "the untouched OCO leg must be cancelled once its sibling trades")
}

func TestRateLimit_RejectsBurstAboveConfiguredRate(t *testing.T) {
	cfg := refdata.SymbolConfig{
		Symbol:   testSymbol,
		Base:     base,
		Quote:    quote,
		TickSize: d("0.01"),
		LotSize:  d("0.001"),
		MinQty:   d("0.001"),
		MaxQty:   d("1000"),
	}
	catalog := refdata.NewCatalog(cfg)
	l := ledger.New()
	sink := journal.NewMemorySink(1024)
	limits := refdata.NewLimitsTable()
	limits.SetParticipant("alice", refdata.RiskLimits{OrdersPerSecond: 1, OrdersPerDay: 1000})
	o := New(catalog, limits, l, sink)
	fund(l, "alice", quote, d("100000"))

	req := SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("1"),
	}
	_, _, err := o.Submit(context.Background(), req)
	require.NoError(t, err)

	_, _, err = o.Submit(context.Background(), req)
	require.Error(t, err)
	rej, ok := err.(*common.ClientRejection)
	require.True(t, ok)
	assert.Equal(t, common.RateLimited, rej.Kind)
}

func TestEndSession_CancelsDayOrders(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", quote, d("10000"))

	order, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.DAY,
		LimitPrice:  d("100"),
		Quantity:    d("10"),
	})
	require.NoError(t, err)
	assert.True(t, order.Status.Resting())

	o.EndSession(context.Background())

	refreshed, err := o.Query(context.Background(), testSymbol, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, refreshed.Status)

	bal := l.Get("alice", quote)
	assert.True(t, bal.Locked.IsZero())
}

func TestHaltAndResume(t *testing.T) {
	o, _, _ := newTestOLM(t)
	ctx := context.Background()

	halted, err := o.Halted(ctx, testSymbol)
	require.NoError(t, err)
	assert.False(t, halted)

	w := o.workers[testSymbol]
	w.trip(common.Fatal(common.BookInconsistency, "forced for test"))

	halted, err = o.Halted(ctx, testSymbol)
	require.NoError(t, err)
	assert.True(t, halted)

	require.NoError(t, o.Resume(ctx, testSymbol))
	halted, err = o.Halted(ctx, testSymbol)
	require.NoError(t, err)
	assert.False(t, halted)
}

func TestUnknownSymbolRejected(t *testing.T) {
	o, _, _ := newTestOLM(t)
	_, _, err := o.Submit(context.Background(), SubmitRequest{
		Participant: "alice",
		Symbol:      "NOPE/USD",
		Side:        common.Buy,
		Type:        common.Limit,
		LimitPrice:  d("1"),
		Quantity:    d("1"),
	})
	require.Error(t, err)
	rej, ok := err.(*common.ClientRejection)
	require.True(t, ok)
	assert.Equal(t, common.UnknownSymbol, rej.Kind)
}

// sanity check that the worker loop actually drains the command channel
// under the tomb; a misconfigured Submit that never reaches a running
// worker would hang this test until its deadline.
func TestSubmit_DoesNotDeadlock(t *testing.T) {
	o, l, _ := newTestOLM(t)
	fund(l, "alice", quote, d("10000"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := o.Submit(ctx, SubmitRequest{
		Participant: "alice",
		Symbol:      testSymbol,
		Side:        common.Buy,
		Type:        common.Limit,
		TIF:         common.GTC,
		LimitPrice:  d("100"),
		Quantity:    d("1"),
	})
	require.NoError(t, err)
}
