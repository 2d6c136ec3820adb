package builtins

import (
	"quantgym/internal/domain"
	"quantgym/internal/strategy"
)

var _ strategy.Generator = (*RSIMeanRev)(nil)

// RSIMeanRev buys when RSI recovers out of the oversold band and sells when
// it falls back from the overbought band. Bars where RSI leaves the neutral
// zone the other way are exit bars: they suppress an entry on that bar, and
// the held position rides until the opposite entry.
type RSIMeanRev struct {
	period int
	low    float64
	high   float64
}

// NewRSIMeanRev creates an RSI mean-reversion strategy.
func NewRSIMeanRev(period int, low, high float64) *RSIMeanRev {
	return &RSIMeanRev{period: period, low: low, high: high}
}

// Name returns "rsi-meanrev".
func (r *RSIMeanRev) Name() string { return "rsi-meanrev" }

// Validate checks period >= 1 and low < high.
func (r *RSIMeanRev) Validate() error {
	if r.period < 1 {
		return domain.Invalid("period", -1, "must be >= 1, got %d", r.period)
	}
	if !(r.low < r.high) {
		return domain.Invalid("low", -1, "low %v must be below high %v", r.low, r.high)
	}
	return nil
}

func (r *RSIMeanRev) Generate(prices domain.PriceSeries) (domain.SignalSeries, error) {
	if err := r.Validate(); err != nil {
		return domain.SignalSeries{}, err
	}
	return domain.SignalSeries{
		Times:  prices.Times,
		Values: strategy.HoldPositions(r.Changes(prices.Prices)),
	}, nil
}

// Changes applies the rules in order; a later match on the same bar wins, so
// an exit bar never enters.
func (r *RSIMeanRev) Changes(prices []float64) []strategy.Change {
	rsi := RSI(prices, r.period)

	changes := make([]strategy.Change, len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := rsi[i-1], rsi[i]
		if crossAbove(prev, cur, r.low) {
			changes[i] = strategy.EnterLong
		}
		if crossBelow(prev, cur, r.high) {
			changes[i] = strategy.EnterShort
		}
		if crossBelow(prev, cur, r.low) || crossAbove(prev, cur, r.high) {
			changes[i] = strategy.Exit
		}
	}
	return changes
}
