package engine

import (
	"math"

	"quantgym/internal/domain"
)

// DefaultRiskFraction is the share of initial cash committed to each entry.
const DefaultRiskFraction = 0.1

// CommissionModel selects how the commission rate is applied to a trade.
type CommissionModel string

const (
	// CommissionPerUnit charges rate per unit traded: rate * |size|.
	CommissionPerUnit CommissionModel = "per_unit"
	// CommissionProportional charges rate on traded notional: rate * |size| * price.
	CommissionProportional CommissionModel = "proportional"
)

// Cost returns the commission for trading size units at price.
func (m CommissionModel) Cost(rate, size, price float64) float64 {
	switch m {
	case CommissionProportional:
		return rate * math.Abs(size) * price
	default:
		return rate * math.Abs(size)
	}
}

// Config holds the run parameters of a Simulator.
type Config struct {
	InitialCash     float64
	CommissionRate  float64
	RiskFraction    float64
	CommissionModel CommissionModel
}

func (c Config) withDefaults() Config {
	if c.RiskFraction == 0 {
		c.RiskFraction = DefaultRiskFraction
	}
	if c.CommissionModel == "" {
		c.CommissionModel = CommissionPerUnit
	}
	return c
}

// Validate checks the run parameters: initial cash > 0, commission rate in
// [0, 1), risk fraction in (0, 1].
func (c Config) Validate() error {
	if !isFinite(c.InitialCash) || c.InitialCash <= 0 {
		return domain.Invalid("initial_cash", -1, "must be > 0, got %v", c.InitialCash)
	}
	if !isFinite(c.CommissionRate) || c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return domain.Invalid("commission_rate", -1, "must be in [0, 1), got %v", c.CommissionRate)
	}
	if !isFinite(c.RiskFraction) || c.RiskFraction <= 0 || c.RiskFraction > 1 {
		return domain.Invalid("risk_fraction", -1, "must be in (0, 1], got %v", c.RiskFraction)
	}
	switch c.CommissionModel {
	case CommissionPerUnit, CommissionProportional, "":
	default:
		return domain.Invalid("commission_model", -1, "unknown model %q", c.CommissionModel)
	}
	return nil
}

// RiskSizer turns an entry signal into a signed position size, committing a
// fixed fraction of the initial cash to every entry.
type RiskSizer struct {
	initialCash  float64
	riskFraction float64
}

// NewRiskSizer creates a RiskSizer.
//
//   - initialCash: the cash the run started with, not the current balance.
//   - riskFraction: share of initialCash put into each position (e.g. 0.10).
func NewRiskSizer(initialCash, riskFraction float64) *RiskSizer {
	return &RiskSizer{
		initialCash:  initialCash,
		riskFraction: riskFraction,
	}
}

// Size returns the signed number of units to hold for sig at price.
func (rs *RiskSizer) Size(price float64, sig domain.Signal) float64 {
	return rs.initialCash * rs.riskFraction / price * float64(sig)
}

// validatePrices re-checks a series that may not have come through
// domain.NewPriceSeries.
func validatePrices(ps domain.PriceSeries) error {
	if ps.Len() == 0 {
		return domain.Invalid("price", -1, "empty series")
	}
	if len(ps.Times) != len(ps.Prices) {
		return domain.Invalid("price", -1, "%d timestamps but %d prices", len(ps.Times), len(ps.Prices))
	}
	for i, p := range ps.Prices {
		if !isFinite(p) || p <= 0 {
			return domain.Invalid("price", i, "price %v is not a positive finite number", p)
		}
		if i > 0 && !ps.Times[i].After(ps.Times[i-1]) {
			return domain.Invalid("price", i, "timestamps not strictly increasing")
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
