// Package builtins provides the strategy generators that ship with quantgym.
package builtins

import (
	"quantgym/internal/domain"
	"quantgym/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Generator = (*SMACross)(nil)

// SMACross enters long when the short-window SMA crosses above the
// long-window SMA and short on the opposite cross. The position is held
// until the next cross.
type SMACross struct {
	shortWindow int
	longWindow  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average windows.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortWindow: short,
		longWindow:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Validate checks that both windows are at least one bar.
func (s *SMACross) Validate() error {
	if s.shortWindow < 1 {
		return domain.Invalid("short_window", -1, "must be >= 1, got %d", s.shortWindow)
	}
	if s.longWindow < 1 {
		return domain.Invalid("long_window", -1, "must be >= 1, got %d", s.longWindow)
	}
	return nil
}

// Generate returns held positions on prices' timestamps.
func (s *SMACross) Generate(prices domain.PriceSeries) (domain.SignalSeries, error) {
	if err := s.Validate(); err != nil {
		return domain.SignalSeries{}, err
	}
	return domain.SignalSeries{
		Times:  prices.Times,
		Values: strategy.HoldPositions(s.Changes(prices.Prices)),
	}, nil
}

// Changes marks the crossover bars. Bars where either average is undefined,
// now or on the previous bar, never cross.
func (s *SMACross) Changes(prices []float64) []strategy.Change {
	short := SMA(prices, s.shortWindow)
	long := SMA(prices, s.longWindow)

	changes := make([]strategy.Change, len(prices))
	for i := 1; i < len(prices); i++ {
		switch {
		case short[i] > long[i] && short[i-1] <= long[i-1]:
			changes[i] = strategy.EnterLong
		case short[i] < long[i] && short[i-1] >= long[i-1]:
			changes[i] = strategy.EnterShort
		}
	}
	return changes
}
