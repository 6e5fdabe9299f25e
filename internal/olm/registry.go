package olm

import (
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// pendingTrigger is a stop, stop-limit, trailing-stop, or take-profit
// order parked outside the book until its fire condition is met. The
// balance it reserved at registration is carried by Order itself
// (LockedAsset/LockedQuantity); firing never takes a new lock.
type pendingTrigger struct {
	order *common.Order

	// highWater/lowWater track a trailing stop's extremum since
	// registration; unused for plain stop/stop-limit/take-profit.
	highWater decimal.Decimal
	lowWater  decimal.Decimal
}

// fireCondition reports whether lastTrade satisfies this trigger's fire
// rule for its order type.
func (p *pendingTrigger) fireCondition(lastTrade decimal.Decimal) bool {
	o := p.order
	switch o.Type {
	case common.Stop, common.StopLimit:
		if o.IsBuy() {
			return lastTrade.GreaterThanOrEqual(o.StopPrice)
		}
		return lastTrade.LessThanOrEqual(o.StopPrice)
	case common.TakeProfit:
		if o.IsBuy() {
			return lastTrade.LessThanOrEqual(o.StopPrice)
		}
		return lastTrade.GreaterThanOrEqual(o.StopPrice)
	case common.TrailingStop:
		p.updateWaterMark(lastTrade)
		effective := p.effectiveTrailStop()
		if o.IsBuy() {
			return lastTrade.GreaterThanOrEqual(effective)
		}
		return lastTrade.LessThanOrEqual(effective)
	default:
		return false
	}
}

func (p *pendingTrigger) updateWaterMark(lastTrade decimal.Decimal) {
	o := p.order
	if o.IsBuy() {
		if p.lowWater.IsZero() || lastTrade.LessThan(p.lowWater) {
			p.lowWater = lastTrade
		}
		return
	}
	if lastTrade.GreaterThan(p.highWater) {
		p.highWater = lastTrade
	}
}

func (p *pendingTrigger) effectiveTrailStop() decimal.Decimal {
	o := p.order
	if o.IsBuy() {
		if o.TrailPercent.IsPositive() {
			return p.lowWater.Mul(decimal.NewFromInt(1).Add(o.TrailPercent))
		}
		return p.lowWater.Add(o.TrailAmount)
	}
	if o.TrailPercent.IsPositive() {
		return p.highWater.Mul(decimal.NewFromInt(1).Sub(o.TrailPercent))
	}
	return p.highWater.Sub(o.TrailAmount)
}

// icebergParent tracks the hidden remainder of an iceberg order behind
// its currently-resting visible slice.
type icebergParent struct {
	order           *common.Order // the parent; never itself rests on the book
	hiddenRemaining decimal.Decimal
	activeSliceID   uint64
}

// registry holds every order not currently resting on the book but still
// tracked by the OLM: triggers, iceberg parents, and OCO links. It is
// owned exclusively by one symbol's worker goroutine, so it needs no
// locking of its own.
type registry struct {
	triggers map[uint64]*pendingTrigger
	icebergs map[uint64]*icebergParent
	ocoPair  map[uint64]uint64 // order id -> sibling order id, both directions
}

func newRegistry() *registry {
	return &registry{
		triggers: make(map[uint64]*pendingTrigger),
		icebergs: make(map[uint64]*icebergParent),
		ocoPair:  make(map[uint64]uint64),
	}
}

// addTrigger registers o as a pending trigger. lastTrade seeds a trailing
// stop's water mark at registration time — a sell's highWater starts at
// lastTrade and a buy's lowWater starts at lastTrade, so the trail is
// measured from the moment the order was registered rather than from
// whatever the next trade happens to be.
func (r *registry) addTrigger(o *common.Order, lastTrade decimal.Decimal) {
	o.Status = common.StatusPendingTrigger
	p := &pendingTrigger{order: o}
	if o.Type == common.TrailingStop {
		if o.IsBuy() {
			p.lowWater = lastTrade
		} else {
			p.highWater = lastTrade
		}
	}
	r.triggers[o.ID] = p
}

func (r *registry) addIceberg(parent *common.Order, sliceID uint64) {
	r.icebergs[parent.ID] = &icebergParent{
		order:           parent,
		hiddenRemaining: parent.TotalQuantity.Sub(parent.DisplayedQuantity),
		activeSliceID:   sliceID,
	}
}

func (r *registry) linkOCO(a, b uint64) {
	r.ocoPair[a] = b
	r.ocoPair[b] = a
}

func (r *registry) unlinkOCO(id uint64) (sibling uint64, ok bool) {
	sibling, ok = r.ocoPair[id]
	if ok {
		delete(r.ocoPair, id)
		delete(r.ocoPair, sibling)
	}
	return
}

// firedTriggers removes and returns every trigger whose condition holds
// against lastTrade, in no particular order — callers re-submit each as
// a plain order.
func (r *registry) firedTriggers(lastTrade decimal.Decimal) []*pendingTrigger {
	var fired []*pendingTrigger
	for id, p := range r.triggers {
		if p.fireCondition(lastTrade) {
			fired = append(fired, p)
			delete(r.triggers, id)
		}
	}
	return fired
}
