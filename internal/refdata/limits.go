package refdata

import (
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// RiskLimits holds the per-participant (or role-based) configuration
// knobs: rate limiting, daily order count, per-symbol position cap, and
// per-order notional cap. These are configuration, not computed. The OLM
// enforces the rate, daily-count and notional limits; PositionCap is
// carried but not checked.
type RiskLimits struct {
	OrdersPerSecond int
	OrdersPerDay    int
	PositionCap     decimal.Decimal // max abs net position per symbol, zero = unlimited
	NotionalCap     decimal.Decimal // max notional value per order, zero = unlimited
}

// DefaultRiskLimits is applied to any participant without an explicit
// role assignment.
var DefaultRiskLimits = RiskLimits{
	OrdersPerSecond: 20,
	OrdersPerDay:    100000,
}

// LimitsTable resolves risk limits by participant, falling back to a
// role-based default and finally DefaultRiskLimits.
type LimitsTable struct {
	byParticipant map[common.Participant]RiskLimits
	byRole        map[string]RiskLimits
	roleOf        map[common.Participant]string
}

func NewLimitsTable() *LimitsTable {
	return &LimitsTable{
		byParticipant: make(map[common.Participant]RiskLimits),
		byRole:        make(map[string]RiskLimits),
		roleOf:        make(map[common.Participant]string),
	}
}

func (t *LimitsTable) SetRole(role string, limits RiskLimits) {
	t.byRole[role] = limits
}

func (t *LimitsTable) AssignRole(p common.Participant, role string) {
	t.roleOf[p] = role
}

func (t *LimitsTable) SetParticipant(p common.Participant, limits RiskLimits) {
	t.byParticipant[p] = limits
}

func (t *LimitsTable) Resolve(p common.Participant) RiskLimits {
	if l, ok := t.byParticipant[p]; ok {
		return l
	}
	if role, ok := t.roleOf[p]; ok {
		if l, ok := t.byRole[role]; ok {
			return l
		}
	}
	return DefaultRiskLimits
}
