// Package refdata implements the exchange's reference data catalog:
// per-symbol trading parameters, immutable once the catalog is built at
// startup and looked up in O(1) by symbol on every ingress.
package refdata

import (
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// SymbolConfig holds one symbol's immutable trading parameters plus its
// per-symbol policy knobs.
type SymbolConfig struct {
	Symbol common.Symbol
	Base   common.Asset
	Quote  common.Asset

	TickSize decimal.Decimal
	LotSize  decimal.Decimal
	MinQty   decimal.Decimal
	MaxQty   decimal.Decimal

	// PriceBandPercent is the percent-of-last-trade window outside which
	// new orders are rejected with PriceOutOfBand.
	PriceBandPercent decimal.Decimal

	SelfMatchPolicy common.SelfMatchPolicy
	TriggerSource   common.TriggerSource
}

// Catalog is the immutable-after-load symbol reference table.
type Catalog struct {
	symbols map[common.Symbol]SymbolConfig
}

// NewCatalog builds a catalog from a fixed set of symbol configs. The
// catalog never mutates after construction.
func NewCatalog(configs ...SymbolConfig) *Catalog {
	c := &Catalog{symbols: make(map[common.Symbol]SymbolConfig, len(configs))}
	for _, cfg := range configs {
		c.symbols[cfg.Symbol] = cfg
	}
	return c
}

// Lookup returns a symbol's config, or false if the symbol is unknown.
func (c *Catalog) Lookup(sym common.Symbol) (SymbolConfig, bool) {
	cfg, ok := c.symbols[sym]
	return cfg, ok
}

// Symbols returns every configured symbol, in no particular order.
func (c *Catalog) Symbols() []common.Symbol {
	out := make([]common.Symbol, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

// AlignedToTick reports whether price is an integer multiple of the
// symbol's tick size.
func (cfg SymbolConfig) AlignedToTick(price decimal.Decimal) bool {
	if cfg.TickSize.IsZero() {
		return true
	}
	return price.Mod(cfg.TickSize).IsZero()
}

// AlignedToLot reports whether qty is an integer multiple of the
// symbol's lot size.
func (cfg SymbolConfig) AlignedToLot(qty decimal.Decimal) bool {
	if cfg.LotSize.IsZero() {
		return true
	}
	return qty.Mod(cfg.LotSize).IsZero()
}

// WithinQuantityRange reports whether qty falls within [MinQty, MaxQty].
func (cfg SymbolConfig) WithinQuantityRange(qty decimal.Decimal) bool {
	if cfg.MinQty.IsPositive() && qty.LessThan(cfg.MinQty) {
		return false
	}
	if cfg.MaxQty.IsPositive() && qty.GreaterThan(cfg.MaxQty) {
		return false
	}
	return true
}

// WithinPriceBand reports whether price falls within PriceBandPercent of
// lastTrade. A zero lastTrade (no trade has occurred yet) always passes,
// since there is nothing to band against.
func (cfg SymbolConfig) WithinPriceBand(price, lastTrade decimal.Decimal) bool {
	if lastTrade.IsZero() || cfg.PriceBandPercent.IsZero() {
		return true
	}
	band := lastTrade.Mul(cfg.PriceBandPercent)
	lower := lastTrade.Sub(band)
	upper := lastTrade.Add(band)
	return !price.LessThan(lower) && !price.GreaterThan(upper)
}
