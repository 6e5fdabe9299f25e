// Package config defines the exchange process's configuration surface.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// FENRIR_* environment variables overriding any field.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"fenrir/internal/common"
	"fenrir/internal/refdata"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Gateway GatewayConfig  `mapstructure:"gateway"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Journal JournalConfig  `mapstructure:"journal"`
	Symbols []SymbolConfig `mapstructure:"symbols"`
	Roles   []RoleConfig   `mapstructure:"roles"`
}

// GatewayConfig controls the external TCP wire-protocol listener.
type GatewayConfig struct {
	Address string `mapstructure:"address"`
}

// MetricsConfig controls the prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig controls the zerolog global level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// JournalConfig sizes the in-memory event journal.
type JournalConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// SymbolConfig is one entry of the tradeable-instrument catalog, in the
// YAML-friendly string-decimal form viper unmarshals before it is
// converted to refdata.SymbolConfig.
type SymbolConfig struct {
	Symbol           string `mapstructure:"symbol"`
	Base             string `mapstructure:"base"`
	Quote            string `mapstructure:"quote"`
	TickSize         string `mapstructure:"tick_size"`
	LotSize          string `mapstructure:"lot_size"`
	MinQty           string `mapstructure:"min_qty"`
	MaxQty           string `mapstructure:"max_qty"`
	PriceBandPercent string `mapstructure:"price_band_percent"`
	SelfMatchPolicy  string `mapstructure:"self_match_policy"`
}

// RoleConfig assigns a named risk-limit profile, optionally bound to a
// list of participants at load time.
type RoleConfig struct {
	Name            string   `mapstructure:"name"`
	Participants    []string `mapstructure:"participants"`
	OrdersPerSecond int      `mapstructure:"orders_per_second"`
	OrdersPerDay    int      `mapstructure:"orders_per_day"`
	PositionCap     string   `mapstructure:"position_cap"`
	NotionalCap     string   `mapstructure:"notional_cap"`
}

// Load reads config from a YAML file with FENRIR_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FENRIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("gateway.address", "0.0.0.0:9001")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", "0.0.0.0:9090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("journal.buffer_size", 4096)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols: at least one symbol must be configured")
	}
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbols: symbol is required")
		}
		if s.Base == "" || s.Quote == "" {
			return fmt.Errorf("symbols[%s]: base and quote are required", s.Symbol)
		}
	}
	if c.Gateway.Address == "" {
		return fmt.Errorf("gateway.address is required")
	}
	return nil
}

// mustDecimal parses s as a decimal, treating an empty string as zero —
// the YAML author left the field unset rather than meaning a literal
// zero-value constraint (e.g. no max quantity cap).
func mustDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func selfMatchPolicyFromString(s string) (common.SelfMatchPolicy, error) {
	switch strings.ToLower(s) {
	case "", "cancel_incoming":
		return common.CancelIncoming, nil
	case "cancel_resting":
		return common.CancelResting, nil
	case "decrement_and_cancel":
		return common.DecrementAndCancel, nil
	default:
		return 0, fmt.Errorf("unknown self_match_policy %q", s)
	}
}

// BuildCatalog converts the YAML-decoded symbol list into a refdata
// catalog, parsing every decimal field.
func (c *Config) BuildCatalog() (*refdata.Catalog, error) {
	configs := make([]refdata.SymbolConfig, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		tick, err := mustDecimal(s.TickSize)
		if err != nil {
			return nil, fmt.Errorf("symbols[%s].tick_size: %w", s.Symbol, err)
		}
		lot, err := mustDecimal(s.LotSize)
		if err != nil {
			return nil, fmt.Errorf("symbols[%s].lot_size: %w", s.Symbol, err)
		}
		minQty, err := mustDecimal(s.MinQty)
		if err != nil {
			return nil, fmt.Errorf("symbols[%s].min_qty: %w", s.Symbol, err)
		}
		maxQty, err := mustDecimal(s.MaxQty)
		if err != nil {
			return nil, fmt.Errorf("symbols[%s].max_qty: %w", s.Symbol, err)
		}
		band, err := mustDecimal(s.PriceBandPercent)
		if err != nil {
			return nil, fmt.Errorf("symbols[%s].price_band_percent: %w", s.Symbol, err)
		}
		policy, err := selfMatchPolicyFromString(s.SelfMatchPolicy)
		if err != nil {
			return nil, fmt.Errorf("symbols[%s].self_match_policy: %w", s.Symbol, err)
		}
		configs = append(configs, refdata.SymbolConfig{
			Symbol:           common.Symbol(s.Symbol),
			Base:             common.Asset(s.Base),
			Quote:            common.Asset(s.Quote),
			TickSize:         tick,
			LotSize:          lot,
			MinQty:           minQty,
			MaxQty:           maxQty,
			PriceBandPercent: band,
			SelfMatchPolicy:  policy,
		})
	}
	return refdata.NewCatalog(configs...), nil
}

// BuildLimits converts the YAML-decoded role list into a resolvable
// risk-limits table, assigning every listed participant to its role.
func (c *Config) BuildLimits() (*refdata.LimitsTable, error) {
	t := refdata.NewLimitsTable()
	for _, r := range c.Roles {
		posCap, err := mustDecimal(r.PositionCap)
		if err != nil {
			return nil, fmt.Errorf("roles[%s].position_cap: %w", r.Name, err)
		}
		notionalCap, err := mustDecimal(r.NotionalCap)
		if err != nil {
			return nil, fmt.Errorf("roles[%s].notional_cap: %w", r.Name, err)
		}
		t.SetRole(r.Name, refdata.RiskLimits{
			OrdersPerSecond: r.OrdersPerSecond,
			OrdersPerDay:    r.OrdersPerDay,
			PositionCap:     posCap,
			NotionalCap:     notionalCap,
		})
		for _, p := range r.Participants {
			t.AssignRole(common.Participant(p), r.Name)
		}
	}
	return t, nil
}
