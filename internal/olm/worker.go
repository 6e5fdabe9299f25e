package olm

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/book"
	"fenrir/internal/common"
	"fenrir/internal/journal"
	"fenrir/internal/ledger"
	"fenrir/internal/metrics"
	"fenrir/internal/refdata"
)

// cmdKind tags the request carried by a command.
type cmdKind int

const (
	cmdSubmit cmdKind = iota
	cmdCancel
	cmdModify
	cmdQuery
	cmdSweep
	cmdResume
	cmdHalted
	cmdSetMetrics
)

type command struct {
	kind cmdKind
	req  any
	resp chan response
}

type response struct {
	order  *common.Order
	trades []common.Trade
	err    error
	halted bool
}

// SubmitRequest is everything the OLM's ingress pipeline needs to accept,
// validate and dispatch one new order.
type SubmitRequest struct {
	Participant       common.Participant
	Symbol            common.Symbol
	Side              common.Side
	Type              common.OrderType
	TIF               common.TimeInForce
	ClientOrderID     string
	LimitPrice        decimal.Decimal
	StopPrice         decimal.Decimal
	TrailAmount       decimal.Decimal
	TrailPercent      decimal.Decimal
	Quantity          decimal.Decimal
	DisplayedQuantity decimal.Decimal
	ExpireAt          time.Time
	OCOSiblingID      uint64 // 0 = not an OCO leg
}

// ModifyRequest carries an optional new price and/or new (decreased)
// quantity for a resting order.
type ModifyRequest struct {
	Participant common.Participant
	OrderID     uint64
	NewPrice    *decimal.Decimal
	NewQty      *decimal.Decimal
}

// worker owns one symbol's book, advanced-order registry and halt
// breaker, and processes every request against them one at a time on a
// single goroutine — the only synchronization this state ever needs.
type worker struct {
	symbol  common.Symbol
	cfg     refdata.SymbolConfig
	book    *book.Book
	reg     *registry
	ledger  *ledger.Ledger
	journal journal.Sink
	breaker *gobreaker.CircuitBreaker
	brkCfg  gobreaker.Settings

	seq     uint64
	orders  map[uint64]*common.Order
	byParty map[common.Participant]map[uint64]struct{}
	openIDs map[common.Participant]map[string]uint64 // clientID -> orderID for live orders

	metrics *metrics.Metrics // nil until OLM.SetMetrics is called

	cmds chan command
	t    *tomb.Tomb
}

func newWorker(cfg refdata.SymbolConfig, l *ledger.Ledger, sink journal.Sink) *worker {
	w := &worker{
		symbol:  cfg.Symbol,
		cfg:     cfg,
		book:    book.New(cfg.Symbol, cfg.SelfMatchPolicy),
		reg:     newRegistry(),
		ledger:  l,
		journal: sink,
		orders:  make(map[uint64]*common.Order),
		byParty: make(map[common.Participant]map[uint64]struct{}),
		openIDs: make(map[common.Participant]map[string]uint64),
		cmds:    make(chan command, 256),
	}
	w.brkCfg = gobreaker.Settings{
		Name:        string(cfg.Symbol),
		MaxRequests: 0,
		// Never half-open on its own: a halt stays tripped until an
		// operator explicitly calls Resume.
		Timeout: 24 * 365 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 0
		},
	}
	w.breaker = gobreaker.NewCircuitBreaker(w.brkCfg)
	return w
}

func (w *worker) run(t *tomb.Tomb) error {
	w.t = t
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-t.Dying():
			return nil
		case c := <-w.cmds:
			c.resp <- w.handle(c)
		case now := <-ticker.C:
			w.sweepExpirations(now)
		}
	}
}

func (w *worker) halted() bool {
	return w.breaker.State() == gobreaker.StateOpen
}

func (w *worker) trip(err error) {
	log.Error().Str("symbol", string(w.symbol)).Err(err).Msg("engine halted on fatal invariant violation")
	_, _ = w.breaker.Execute(func() (any, error) { return nil, err })
}

// resume clears a halt. Only an operator-facing collaborator should call
// this, after investigating the fatal condition that tripped it.
func (w *worker) resume() {
	w.breaker = gobreaker.NewCircuitBreaker(w.brkCfg)
}

func (w *worker) handle(c command) response {
	if w.halted() && c.kind != cmdQuery && c.kind != cmdResume && c.kind != cmdHalted && c.kind != cmdSetMetrics {
		return response{err: common.Reject(common.EngineHalted, "engine halted, awaiting operator resume")}
	}
	switch c.kind {
	case cmdSetMetrics:
		w.metrics = c.req.(*metrics.Metrics)
		return response{}
	case cmdSubmit:
		resp := w.handleSubmit(c.req.(SubmitRequest))
		w.reportBookTop()
		return resp
	case cmdCancel:
		req := c.req.(cancelRequest)
		resp := w.handleCancel(req)
		w.reportBookTop()
		return resp
	case cmdModify:
		resp := w.handleModify(c.req.(ModifyRequest))
		w.reportBookTop()
		return resp
	case cmdQuery:
		return w.handleQuery(c.req.(queryRequest))
	case cmdSweep:
		w.sweepSession()
		w.reportBookTop()
		return response{}
	case cmdResume:
		w.resume()
		return response{}
	case cmdHalted:
		return response{halted: w.halted()}
	default:
		return response{err: common.Reject(common.UnknownOrder, "unrecognized command")}
	}
}

// reportBookTop publishes the current best bid/ask price and top-level
// depth, a no-op until OLM.SetMetrics wires a collector in.
func (w *worker) reportBookTop() {
	if w.metrics == nil {
		return
	}
	bidPrice, _ := w.book.BestBid()
	askPrice, _ := w.book.BestAsk()
	bids, asks := w.book.Depth(1)
	var bidQty, askQty decimal.Decimal
	if len(bids) > 0 {
		bidQty = bids[0].Quantity
	}
	if len(asks) > 0 {
		askQty = asks[0].Quantity
	}
	bp, _ := bidPrice.Float64()
	ap, _ := askPrice.Float64()
	bq, _ := bidQty.Float64()
	aq, _ := askQty.Float64()
	w.metrics.SetBookTop(string(w.symbol), bp, bq, ap, aq)
}

type cancelRequest struct {
	Participant common.Participant
	OrderID     uint64
}

type queryRequest struct {
	Participant common.Participant
	OrderID     uint64
}

func (w *worker) trackOrder(o *common.Order) {
	w.orders[o.ID] = o
	set, ok := w.byParty[o.Participant]
	if !ok {
		set = make(map[uint64]struct{})
		w.byParty[o.Participant] = set
	}
	set[o.ID] = struct{}{}
}

func (w *worker) nextSeq() uint64 {
	w.seq++
	return w.seq
}

// --- ingress pipeline ------------------------------------------------

func (w *worker) handleSubmit(req SubmitRequest) response {
	// Step 1: reference-data check.
	if req.Type != common.Market && req.LimitPrice.IsPositive() {
		if !w.cfg.AlignedToTick(req.LimitPrice) {
			return response{err: common.Reject(common.BadTick, "price not aligned to tick size")}
		}
		if !w.cfg.WithinPriceBand(req.LimitPrice, w.book.LastTradePrice) {
			return response{err: common.Reject(common.PriceOutOfBand, "price outside configured band")}
		}
	}
	if !w.cfg.AlignedToLot(req.Quantity) {
		return response{err: common.Reject(common.BadLot, "quantity not aligned to lot size")}
	}
	if !w.cfg.WithinQuantityRange(req.Quantity) {
		return response{err: common.Reject(common.QtyOutOfRange, "quantity outside configured range")}
	}

	// Duplicate client order id among this participant's active orders.
	if req.ClientOrderID != "" {
		if live, ok := w.openIDs[req.Participant]; ok {
			if _, dup := live[req.ClientOrderID]; dup {
				return response{err: common.Reject(common.DuplicateClientID, "client order id already active")}
			}
		}
	}

	// Step 3: sequence assignment. Order id is the same monotonic
	// counter, scoped to this symbol.
	seq := w.nextSeq()
	o := &common.Order{
		ID:                seq,
		ClientID:          req.ClientOrderID,
		Participant:       req.Participant,
		Symbol:            w.symbol,
		Side:              req.Side,
		Type:              req.Type,
		TIF:               req.TIF,
		Status:            common.StatusNew,
		LimitPrice:        req.LimitPrice,
		StopPrice:         req.StopPrice,
		TrailAmount:       req.TrailAmount,
		TrailPercent:      req.TrailPercent,
		TotalQuantity:     req.Quantity,
		DisplayedQuantity: req.DisplayedQuantity,
		Sequence:          seq,
		SubmittedAt:       time.Now(),
		ExchAt:            time.Now(),
		ExpireAt:          req.ExpireAt,
		OCOSiblingID:      req.OCOSiblingID,
	}

	// Step 4: balance reservation. Any buy order with no limit price to
	// anchor against — market, stop, trailing-stop, take-profit — sizes
	// its reservation off the last trade price instead; with no trade
	// history yet there is nothing to size against, and letting it
	// through would register the order with a zero reservation that
	// Settle later fatals on once the order actually trades.
	asset, qty := reservationFor(o, w.cfg, w.book.LastTradePrice)
	if qty.IsZero() && o.IsBuy() && o.LimitPrice.IsZero() {
		return response{err: common.Reject(common.PriceOutOfBand, "no trade history to size an unpriced buy order's reservation")}
	}
	if err := w.ledger.Lock(o.Participant, asset, qty); err != nil {
		return response{err: err}
	}
	o.LockedAsset = asset
	o.LockedQuantity = qty

	w.trackOrder(o)
	w.markOpen(o)
	w.emit(journal.Accepted, o, "")

	trades, err := w.dispatch(o)
	if err != nil {
		if _, fatal := err.(*common.FatalError); fatal {
			w.trip(err)
			return response{order: o, trades: trades, err: err}
		}
		w.emit(journal.Rejected, o, err.Error())
	}
	if err2 := finalizeOrder(w.ledger, o); err2 != nil {
		w.trip(err2)
		return response{order: o, trades: trades, err: err2}
	}
	w.reactToTrades(trades)
	w.emitTerminal(o)
	if o.OCOSiblingID != 0 {
		w.reg.linkOCO(o.ID, o.OCOSiblingID)
		w.reactToOCO(o)
	}
	if !o.Status.Resting() && o.Status != common.StatusPendingTrigger {
		w.markClosed(o)
	}
	return response{order: o, trades: trades, err: err}
}

func (w *worker) markOpen(o *common.Order) {
	if o.ClientID == "" {
		return
	}
	m, ok := w.openIDs[o.Participant]
	if !ok {
		m = make(map[string]uint64)
		w.openIDs[o.Participant] = m
	}
	m[o.ClientID] = o.ID
}

func (w *worker) markClosed(o *common.Order) {
	if o.ClientID == "" {
		return
	}
	delete(w.openIDs[o.Participant], o.ClientID)
}

// dispatch is ingress pipeline step 5.
func (w *worker) dispatch(o *common.Order) ([]common.Trade, error) {
	switch {
	case o.Type.IsAdvanced() && o.Type != common.OCO:
		w.reg.addTrigger(o, w.book.LastTradePrice)
		return nil, nil
	case o.Type == common.Iceberg:
		slice := w.sliceOf(o)
		trades, err := w.book.Add(slice, time.Now())
		w.trackOrder(slice)
		hidden := o.TotalQuantity.Sub(slice.TotalQuantity)
		w.reg.addIceberg(o, slice.ID)
		o.FilledQuantity = slice.FilledQuantity
		switch {
		case slice.Status == common.StatusFilled && hidden.IsZero():
			o.Status = common.StatusFilled
		case slice.Status == common.StatusCancelled && hidden.IsZero() && slice.FilledQuantity.IsZero():
			o.Status = common.StatusCancelled
		case slice.FilledQuantity.IsPositive():
			o.Status = common.StatusPartiallyFilled
		default:
			o.Status = common.StatusNew
		}
		w.settleAndUnlockTrades(trades)
		return trades, err
	case o.Type == common.OCO:
		// An OCO leg is itself a plain limit order once linked; treat it
		// as a resting limit order and let linkOCO record the pairing.
		o.Type = common.Limit
		trades, err := w.book.Add(o, time.Now())
		w.settleAndUnlockTrades(trades)
		return trades, err
	default:
		trades, err := w.book.Add(o, time.Now())
		w.settleAndUnlockTrades(trades)
		return trades, err
	}
}

// sliceOf creates the visible child order for an iceberg parent's first
// slice, sized to the lesser of displayed quantity and the parent's total
// quantity. Later slices are built by reactToIceberg.
func (w *worker) sliceOf(parent *common.Order) *common.Order {
	qty := decimal.Min(parent.DisplayedQuantity, parent.TotalQuantity)
	slice := &common.Order{
		ID:             w.nextSeq(),
		ClientID:       parent.ClientID,
		Participant:    parent.Participant,
		Symbol:         parent.Symbol,
		Side:           parent.Side,
		Type:           common.Limit,
		TIF:            common.GTC,
		Status:         common.StatusNew,
		LimitPrice:     parent.LimitPrice,
		TotalQuantity:  qty,
		Sequence:       parent.Sequence,
		ParentOrderID:  parent.ID,
		LockedAsset:    parent.LockedAsset,
		LockedQuantity: decimal.Zero, // the parent carries the whole reservation
	}
	return slice
}

// settleAndUnlockTrades is ingress pipeline step 6: settle every trade,
// then keep both sides' lock bookkeeping in step with what Settle just
// debited.
func (w *worker) settleAndUnlockTrades(trades []common.Trade) {
	for _, tr := range trades {
		taker := w.orders[tr.TakerOrderID]
		maker := w.orders[tr.MakerOrderID]
		if taker == nil || maker == nil {
			w.trip(common.Fatal(common.BookInconsistency, "trade referenced an order the OLM never tracked"))
			continue
		}
		var buyer, seller *common.Order
		if tr.TakerSide == common.Buy {
			buyer, seller = taker, maker
		} else {
			buyer, seller = maker, taker
		}
		if err := w.ledger.Settle(buyer.Participant, seller.Participant, w.cfg.Base, w.cfg.Quote, tr.Quantity, tr.Quantity.Mul(tr.Price)); err != nil {
			w.trip(err)
			continue
		}
		// An iceberg slice holds no lock of its own; its parent carries the
		// reservation, so the parent's bookkeeping takes the debit.
		buyerLock, sellerLock := buyer, seller
		if p := w.orders[buyer.ParentOrderID]; buyer.ParentOrderID != 0 && p != nil {
			buyerLock = p
		}
		if p := w.orders[seller.ParentOrderID]; seller.ParentOrderID != 0 && p != nil {
			sellerLock = p
		}
		applySettleToLock(buyerLock, common.Buy, tr.Quantity, tr.Price)
		applySettleToLock(sellerLock, common.Sell, tr.Quantity, tr.Price)
		// The taker's own Status/finalize/terminal-event handling is the
		// caller's job (it owns the taker order end to end); only the
		// maker's rest-of-lifecycle bookkeeping is local to this trade.
		_ = finalizeOrder(w.ledger, maker)
		w.emitTrade(tr)
		w.emitTerminal(maker)
		if maker.Status.Terminal() {
			w.markClosed(maker)
		}
		w.reactToOCOOrder(maker)
		w.reactToIceberg(maker)
		w.reactToIceberg(taker)
	}
}

// removeFromBookOrRegistry removes o's resting footprint — whichever of
// trigger, iceberg parent, or plain book order it currently has — without
// touching Status, locks, or journaling. Callers decide the resulting
// status and do the rest of the teardown themselves.
func (w *worker) removeFromBookOrRegistry(o *common.Order) error {
	switch {
	case o.Status == common.StatusPendingTrigger:
		delete(w.reg.triggers, o.ID)
		return nil
	case w.reg.icebergs[o.ID] != nil:
		ice := w.reg.icebergs[o.ID]
		if _, err := w.book.Cancel(ice.activeSliceID); err != nil {
			return err
		}
		delete(w.reg.icebergs, o.ID)
		return nil
	default:
		_, err := w.book.Cancel(o.ID)
		return err
	}
}

func (w *worker) handleCancel(req cancelRequest) response {
	o, ok := w.orders[req.OrderID]
	if !ok {
		return response{err: common.Reject(common.UnknownOrder, "")}
	}
	if o.Participant != req.Participant {
		return response{err: common.Reject(common.Unauthorized, "not the owner of this order")}
	}
	if o.Status.Terminal() {
		return response{err: common.Reject(common.UnknownOrder, "order is already terminal")}
	}

	if err := w.removeFromBookOrRegistry(o); err != nil {
		return response{err: err}
	}
	o.Status = common.StatusCancelled
	if err := finalizeOrder(w.ledger, o); err != nil {
		w.trip(err)
		return response{order: o, err: err}
	}
	w.emitTerminal(o)
	w.markClosed(o)
	w.reactToOCOOrder(o)
	return response{order: o}
}

func (w *worker) handleModify(req ModifyRequest) response {
	o, ok := w.orders[req.OrderID]
	if !ok {
		return response{err: common.Reject(common.UnknownOrder, "")}
	}
	if o.Participant != req.Participant {
		return response{err: common.Reject(common.Unauthorized, "not the owner of this order")}
	}
	if req.NewQty != nil && req.NewQty.GreaterThan(o.Remaining()) {
		return response{err: common.Reject(common.InvalidModify, "modify cannot increase quantity")}
	}

	updated, trades, err := w.book.Modify(o.ID, req.NewPrice, req.NewQty, time.Now())
	if err != nil {
		return response{err: err}
	}
	w.settleAndUnlockTrades(trades)
	if err := finalizeOrder(w.ledger, updated); err != nil {
		w.trip(err)
		return response{order: updated, trades: trades, err: err}
	}
	w.reactToTrades(trades)
	w.emitTerminal(updated)
	return response{order: updated, trades: trades}
}

func (w *worker) handleQuery(req queryRequest) response {
	o, ok := w.orders[req.OrderID]
	if !ok {
		return response{err: common.Reject(common.UnknownOrder, "")}
	}
	if o.Participant != req.Participant {
		return response{err: common.Reject(common.Unauthorized, "not the owner of this order")}
	}
	return response{order: o}
}

// --- advanced-order reactions and journaling --------------------------

func (w *worker) emit(kind journal.Kind, o *common.Order, detail string) {
	w.journal.Append(journal.Record{
		Sequence:    w.nextSeq(),
		Symbol:      w.symbol,
		Kind:        kind,
		OrderID:     o.ID,
		Participant: o.Participant,
		Timestamp:   time.Now(),
		Detail:      detail,
	})
}

func (w *worker) emitTrade(tr common.Trade) {
	w.journal.Append(journal.Record{
		Sequence:         w.nextSeq(),
		Symbol:           w.symbol,
		Kind:             journal.TradeExecuted,
		Timestamp:        tr.Timestamp,
		TradeID:          tr.ID,
		MakerOrderID:     tr.MakerOrderID,
		TakerOrderID:     tr.TakerOrderID,
		Price:            tr.Price,
		Quantity:         tr.Quantity,
		TakerSide:        tr.TakerSide,
		MakerParticipant: tr.MakerParticipant,
		TakerParticipant: tr.TakerParticipant,
	})
}

// emitTerminal records the lifecycle event matching o's current status,
// once per transition into that status. Non-terminal/non-fill statuses
// (New, PendingTrigger) produce no event of their own — Accepted already
// covered order arrival.
func (w *worker) emitTerminal(o *common.Order) {
	switch o.Status {
	case common.StatusFilled:
		w.emit(journal.Filled, o, "")
	case common.StatusPartiallyFilled:
		w.emit(journal.PartialFill, o, "")
	case common.StatusCancelled:
		w.emit(journal.Cancelled, o, "")
	case common.StatusExpired:
		w.emit(journal.Expired, o, "")
	}
}

// reactToTrades fires every advanced-order trigger whose condition now
// holds against the book's last trade price, re-submitting each as a
// plain order. A TRIGGERED event precedes whatever trades the
// resubmission itself produces.
func (w *worker) reactToTrades(trades []common.Trade) {
	if len(trades) == 0 {
		return
	}
	for _, p := range w.reg.firedTriggers(w.book.LastTradePrice) {
		o := p.order
		w.emit(journal.Triggered, o, "")
		if sib, ok := w.reg.unlinkOCO(o.ID); ok {
			w.cancelSibling(sib)
		}
		if o.Type == common.StopLimit {
			o.Type = common.Limit
		} else {
			o.Type = common.Market
		}
		more, err := w.book.Add(o, time.Now())
		if err != nil {
			o.Status = common.StatusCancelled
			w.emit(journal.Rejected, o, err.Error())
		}
		w.settleAndUnlockTrades(more)
		_ = finalizeOrder(w.ledger, o)
		w.emitTerminal(o)
		if o.Status.Terminal() {
			w.markClosed(o)
		}
		w.reactToTrades(more)
	}
}

// reactToOCO links a freshly-accepted OCO leg's sibling, cancelling it
// immediately if the new leg already traded or finished terminal.
func (w *worker) reactToOCO(o *common.Order) {
	if o.FilledQuantity.IsPositive() || o.Status.Terminal() {
		w.reactToOCOOrder(o)
	}
}

// reactToOCOOrder cancels o's linked sibling, if any, once o itself has
// traded or reached a terminal state.
func (w *worker) reactToOCOOrder(o *common.Order) {
	if !o.FilledQuantity.IsPositive() && !o.Status.Terminal() {
		return
	}
	if sib, ok := w.reg.unlinkOCO(o.ID); ok {
		w.cancelSibling(sib)
	}
}

func (w *worker) cancelSibling(id uint64) {
	sib, ok := w.orders[id]
	if !ok || sib.Status.Terminal() {
		return
	}
	_ = w.removeFromBookOrRegistry(sib)
	sib.Status = common.StatusCancelled
	_ = finalizeOrder(w.ledger, sib)
	w.emitTerminal(sib)
	w.markClosed(sib)
}

// reactToIceberg replenishes the next visible slice once an iceberg
// parent's active slice is fully filled, until the hidden remainder is
// exhausted.
func (w *worker) reactToIceberg(slice *common.Order) {
	if slice.ParentOrderID == 0 || slice.Status != common.StatusFilled {
		return
	}
	ice, ok := w.reg.icebergs[slice.ParentOrderID]
	if !ok || ice.activeSliceID != slice.ID {
		return
	}
	parent := ice.order
	parent.FilledQuantity = parent.FilledQuantity.Add(slice.FilledQuantity)
	if ice.hiddenRemaining.IsZero() {
		parent.Status = common.StatusFilled
		delete(w.reg.icebergs, parent.ID)
		_ = finalizeOrder(w.ledger, parent)
		w.emitTerminal(parent)
		w.markClosed(parent)
		return
	}
	parent.Status = common.StatusPartiallyFilled
	w.emitTerminal(parent)

	next := decimal.Min(parent.DisplayedQuantity, ice.hiddenRemaining)
	ice.hiddenRemaining = ice.hiddenRemaining.Sub(next)
	nextSlice := &common.Order{
		ID:            w.nextSeq(),
		ClientID:      parent.ClientID,
		Participant:   parent.Participant,
		Symbol:        parent.Symbol,
		Side:          parent.Side,
		Type:          common.Limit,
		TIF:           common.GTC,
		Status:        common.StatusNew,
		LimitPrice:    parent.LimitPrice,
		TotalQuantity: next,
		Sequence:      parent.Sequence,
		ParentOrderID: parent.ID,
		LockedAsset:   parent.LockedAsset,
	}
	w.trackOrder(nextSlice)
	ice.activeSliceID = nextSlice.ID
	trades, err := w.book.Add(nextSlice, time.Now())
	if err != nil {
		w.emit(journal.Rejected, nextSlice, err.Error())
		return
	}
	w.settleAndUnlockTrades(trades)
}

// sweepExpirations cancels every resting GTD order past its expiry. Run
// once a minute from the worker loop. Iceberg slice children are skipped:
// their parent owns the reservation and the cancellation.
func (w *worker) sweepExpirations(now time.Time) {
	for _, o := range w.orders {
		if o.ParentOrderID != 0 || !o.Status.Resting() {
			continue
		}
		expired := o.TIF == common.GTD && !o.ExpireAt.IsZero() && now.After(o.ExpireAt)
		if !expired {
			continue
		}
		if err := w.removeFromBookOrRegistry(o); err != nil {
			continue
		}
		o.Status = common.StatusExpired
		_ = finalizeOrder(w.ledger, o)
		w.emitTerminal(o)
		w.markClosed(o)
		w.reactToOCOOrder(o)
	}
}

// sweepSession cancels every resting DAY order, plus every DAY pending
// trigger that never fired. Invoked once, explicitly, at session close —
// unlike GTD expiry this never happens on its own schedule.
func (w *worker) sweepSession() {
	for _, o := range w.orders {
		if o.ParentOrderID != 0 || o.TIF != common.DAY {
			continue
		}
		if !o.Status.Resting() && o.Status != common.StatusPendingTrigger {
			continue
		}
		if err := w.removeFromBookOrRegistry(o); err != nil {
			continue
		}
		o.Status = common.StatusCancelled
		_ = finalizeOrder(w.ledger, o)
		w.emitTerminal(o)
		w.markClosed(o)
		w.reactToOCOOrder(o)
	}
}
