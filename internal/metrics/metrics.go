// Package metrics exposes the exchange's prometheus instrumentation: one
// registry shared by every symbol worker and the gateway. Callers use the
// methods on Metrics (OrderAccepted, TradeExecuted, SetBookTop, ...)
// directly; nothing here touches engine state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the exchange registers. The zero value
// is not usable; construct with New.
type Metrics struct {
	ordersAccepted  *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	tradesExecuted  *prometheus.CounterVec
	notionalTraded  *prometheus.CounterVec
	engineHalts     *prometheus.CounterVec
	bookDepth       *prometheus.GaugeVec
	bookBestPrice   *prometheus.GaugeVec
	ingressDuration prometheus.Histogram
	connectedClients prometheus.Gauge
}

// New registers every collector against reg and returns the bundle. Call
// once per process; registering twice against the same registry panics,
// matching prometheus/client_golang's own behavior.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ordersAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fenrir",
			Subsystem: "olm",
			Name:      "orders_accepted_total",
			Help:      "Orders accepted past ingress validation, by symbol and order type.",
		}, []string{"symbol", "type"}),
		ordersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fenrir",
			Subsystem: "olm",
			Name:      "orders_rejected_total",
			Help:      "Orders rejected at ingress, by symbol and rejection kind.",
		}, []string{"symbol", "kind"}),
		tradesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fenrir",
			Subsystem: "book",
			Name:      "trades_executed_total",
			Help:      "Trades executed, by symbol.",
		}, []string{"symbol"}),
		notionalTraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fenrir",
			Subsystem: "book",
			Name:      "notional_traded_total",
			Help:      "Cumulative trade notional (price*quantity), by symbol.",
		}, []string{"symbol"}),
		engineHalts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fenrir",
			Subsystem: "olm",
			Name:      "engine_halts_total",
			Help:      "Fatal invariant violations that tripped a symbol's circuit breaker.",
		}, []string{"symbol", "kind"}),
		bookDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fenrir",
			Subsystem: "book",
			Name:      "depth_quantity",
			Help:      "Aggregate resting quantity at the best price level, by symbol and side.",
		}, []string{"symbol", "side"}),
		bookBestPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fenrir",
			Subsystem: "book",
			Name:      "best_price",
			Help:      "Best bid/ask price, by symbol and side.",
		}, []string{"symbol", "side"}),
		ingressDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fenrir",
			Subsystem: "olm",
			Name:      "ingress_duration_seconds",
			Help:      "Latency of one Submit/Cancel/Modify/Query round trip through a symbol worker.",
			Buckets:   prometheus.DefBuckets,
		}),
		connectedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "fenrir",
			Subsystem: "gateway",
			Name:      "connected_clients",
			Help:      "Currently open gateway TCP sessions.",
		}),
	}
}

func (m *Metrics) OrderAccepted(symbol, orderType string) {
	m.ordersAccepted.WithLabelValues(symbol, orderType).Inc()
}

func (m *Metrics) OrderRejected(symbol, kind string) {
	m.ordersRejected.WithLabelValues(symbol, kind).Inc()
}

func (m *Metrics) TradeExecuted(symbol string, price, quantity float64) {
	m.tradesExecuted.WithLabelValues(symbol).Inc()
	m.notionalTraded.WithLabelValues(symbol).Add(price * quantity)
}

func (m *Metrics) EngineHalted(symbol, kind string) {
	m.engineHalts.WithLabelValues(symbol, kind).Inc()
}

func (m *Metrics) SetBookTop(symbol string, bidPrice, bidQty, askPrice, askQty float64) {
	m.bookBestPrice.WithLabelValues(symbol, "bid").Set(bidPrice)
	m.bookBestPrice.WithLabelValues(symbol, "ask").Set(askPrice)
	m.bookDepth.WithLabelValues(symbol, "bid").Set(bidQty)
	m.bookDepth.WithLabelValues(symbol, "ask").Set(askQty)
}

func (m *Metrics) ObserveIngressDuration(seconds float64) {
	m.ingressDuration.Observe(seconds)
}

func (m *Metrics) ClientConnected() {
	m.connectedClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	m.connectedClients.Dec()
}
