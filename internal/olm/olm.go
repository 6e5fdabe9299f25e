// Package olm implements the exchange's order lifecycle manager: the
// component that turns a participant's submission into reference-data
// validation, balance reservation, book dispatch, trade settlement, and
// journal emission. One worker goroutine owns each symbol's book and
// advanced-order registry; the Ledger is the only state two workers ever
// touch concurrently.
package olm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/common"
	"fenrir/internal/journal"
	"fenrir/internal/ledger"
	"fenrir/internal/metrics"
	"fenrir/internal/refdata"
)

// OLM fans every request out to the worker owning its symbol and applies
// per-participant rate limiting ahead of that dispatch.
type OLM struct {
	catalog *refdata.Catalog
	limits  *refdata.LimitsTable
	ledger  *ledger.Ledger
	journal journal.Sink

	workers map[common.Symbol]*worker

	rateStore   limiter.Store
	limiterMu   sync.Mutex
	secLimiters map[int]*limiter.Limiter // keyed by orders-per-second cap
	dayLimiters map[int]*limiter.Limiter // keyed by orders-per-day cap

	t *tomb.Tomb
}

// New builds an OLM with one worker per catalog symbol and starts each
// worker's command loop under a shared tomb.
func New(catalog *refdata.Catalog, limits *refdata.LimitsTable, l *ledger.Ledger, sink journal.Sink) *OLM {
	o := &OLM{
		catalog:     catalog,
		limits:      limits,
		ledger:      l,
		journal:     sink,
		workers:     make(map[common.Symbol]*worker),
		rateStore:   memory.NewStore(),
		secLimiters: make(map[int]*limiter.Limiter),
		dayLimiters: make(map[int]*limiter.Limiter),
	}
	t, _ := tomb.WithContext(context.Background())
	o.t = t
	for _, sym := range catalog.Symbols() {
		cfg, _ := catalog.Lookup(sym)
		w := newWorker(cfg, l, sink)
		o.workers[sym] = w
		t.Go(func() error { return w.run(t) })
	}
	return o
}

// Shutdown stops every symbol worker and waits for them to exit.
func (o *OLM) Shutdown() {
	o.t.Kill(nil)
	_ = o.t.Wait()
}

func (o *OLM) workerFor(sym common.Symbol) (*worker, error) {
	w, ok := o.workers[sym]
	if !ok {
		return nil, common.Reject(common.UnknownSymbol, string(sym))
	}
	return w, nil
}

// checkRate enforces a participant's configured per-second and per-day
// submission rate, keyed per participant so one busy account never starves
// another's quota.
func (o *OLM) checkRate(p common.Participant) error {
	rl := o.limits.Resolve(p)
	ctx := context.Background()

	secL := o.limiterFor(o.secLimiters, rl.OrdersPerSecond, time.Second)
	state, err := secL.Get(ctx, fmt.Sprintf("%s:1s", p))
	if err != nil {
		log.Error().Err(err).Str("participant", string(p)).Msg("rate limiter unavailable")
		return common.Retryable(common.IngressQueueFull)
	}
	if state.Reached {
		return common.Reject(common.RateLimited, "per-second order rate exceeded")
	}

	dayL := o.limiterFor(o.dayLimiters, rl.OrdersPerDay, 24*time.Hour)
	dayState, err := dayL.Get(ctx, fmt.Sprintf("%s:1d", p))
	if err != nil {
		log.Error().Err(err).Str("participant", string(p)).Msg("rate limiter unavailable")
		return common.Retryable(common.IngressQueueFull)
	}
	if dayState.Reached {
		return common.Reject(common.RateLimited, "daily order count exceeded")
	}
	return nil
}

// limiterFor returns the cached limiter for a given cap, building one
// under limiterMu on first use. Submit is called concurrently by however
// many callers the exchange has at once, so this cache needs its own
// lock distinct from any one symbol worker's single-goroutine discipline.
func (o *OLM) limiterFor(cache map[int]*limiter.Limiter, limit int, period time.Duration) *limiter.Limiter {
	o.limiterMu.Lock()
	defer o.limiterMu.Unlock()
	if l, ok := cache[limit]; ok {
		return l
	}
	l := limiter.New(o.rateStore, limiter.Rate{Period: period, Limit: int64(limit)})
	cache[limit] = l
	return l
}

// checkCaps enforces a per-order notional cap ahead of dispatch. Position
// caps need a live net-position figure the ledger does not track per
// symbol today, so only the notional cap — computable from the order
// itself — is enforced here.
func (o *OLM) checkCaps(p common.Participant, cfg refdata.SymbolConfig, req SubmitRequest) error {
	rl := o.limits.Resolve(p)
	if rl.NotionalCap.IsZero() {
		return nil
	}
	price := req.LimitPrice
	if price.IsZero() {
		return nil // market order notional isn't knowable ahead of matching
	}
	notional := price.Mul(req.Quantity)
	if notional.GreaterThan(rl.NotionalCap) {
		return common.Reject(common.NotionalCapExceeded, "order notional exceeds configured cap")
	}
	return nil
}

// Submit runs a new order through the full ingress pipeline: reference
// data and rate checks, then handoff to the owning symbol's worker for
// sequencing, reservation, dispatch and settlement.
func (o *OLM) Submit(ctx context.Context, req SubmitRequest) (*common.Order, []common.Trade, error) {
	w, err := o.workerFor(req.Symbol)
	if err != nil {
		return nil, nil, err
	}
	if err := o.checkRate(req.Participant); err != nil {
		return nil, nil, err
	}
	if err := o.checkCaps(req.Participant, w.cfg, req); err != nil {
		return nil, nil, err
	}

	resp := make(chan response, 1)
	cmd := command{kind: cmdSubmit, req: req, resp: resp}
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.order, r.trades, r.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Cancel requests cancellation of a resting or pending order. Cancelling
// an already-terminal or already-cancelled order is a rejection, not a
// silent success, so a duplicate cancel is always visible to the caller.
func (o *OLM) Cancel(ctx context.Context, sym common.Symbol, participant common.Participant, orderID uint64) (*common.Order, error) {
	w, err := o.workerFor(sym)
	if err != nil {
		return nil, err
	}
	resp := make(chan response, 1)
	cmd := command{kind: cmdCancel, req: cancelRequest{Participant: participant, OrderID: orderID}, resp: resp}
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.order, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Modify requests a price and/or quantity-decrease change to a resting
// order. A quantity-only decrease keeps time priority; a price change
// re-enters the book and loses it.
func (o *OLM) Modify(ctx context.Context, sym common.Symbol, req ModifyRequest) (*common.Order, []common.Trade, error) {
	w, err := o.workerFor(sym)
	if err != nil {
		return nil, nil, err
	}
	resp := make(chan response, 1)
	cmd := command{kind: cmdModify, req: req, resp: resp}
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.order, r.trades, r.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Query returns the current state of one of a participant's own orders.
func (o *OLM) Query(ctx context.Context, sym common.Symbol, participant common.Participant, orderID uint64) (*common.Order, error) {
	w, err := o.workerFor(sym)
	if err != nil {
		return nil, err
	}
	resp := make(chan response, 1)
	cmd := command{kind: cmdQuery, req: queryRequest{Participant: participant, OrderID: orderID}, resp: resp}
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.order, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EndSession sweeps every symbol's DAY orders and pending DAY triggers,
// cancelling them. Intended to be called once at the close of a trading
// session.
func (o *OLM) EndSession(ctx context.Context) {
	for sym, w := range o.workers {
		resp := make(chan response, 1)
		select {
		case w.cmds <- command{kind: cmdSweep, resp: resp}:
			<-resp
		case <-ctx.Done():
			log.Warn().Str("symbol", string(sym)).Msg("end-of-session sweep aborted by context cancellation")
			return
		}
	}
}

// Resume clears a halted symbol's circuit breaker, letting it accept
// submissions again. Callers are expected to have investigated the fatal
// condition that tripped it first — Resume itself does no verification.
// Routed through the worker's own command loop rather than touched
// directly, since the breaker is otherwise read only from that goroutine.
func (o *OLM) Resume(ctx context.Context, sym common.Symbol) error {
	w, err := o.workerFor(sym)
	if err != nil {
		return err
	}
	resp := make(chan response, 1)
	select {
	case w.cmds <- command{kind: cmdResume, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetMetrics wires a collector into every symbol worker, routed through
// each worker's own command loop (like Resume/Halted) rather than
// assigned directly, since the worker's metrics field is otherwise only
// ever touched from that one goroutine. Safe to call at any time,
// including against a halted symbol.
func (o *OLM) SetMetrics(m *metrics.Metrics) {
	for _, w := range o.workers {
		resp := make(chan response, 1)
		w.cmds <- command{kind: cmdSetMetrics, req: m, resp: resp}
		<-resp
	}
}

// Halted reports whether a symbol's engine is currently tripped.
func (o *OLM) Halted(ctx context.Context, sym common.Symbol) (bool, error) {
	w, err := o.workerFor(sym)
	if err != nil {
		return false, err
	}
	resp := make(chan response, 1)
	select {
	case w.cmds <- command{kind: cmdHalted, resp: resp}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.halted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
