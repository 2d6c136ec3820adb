package builtins

import (
	"math"

	"github.com/markcheno/go-talib"
)

// nanSeries returns n NaNs.
func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over window, NaN until window values are
// available.
func SMA(in []float64, window int) []float64 {
	if window < 1 || window > len(in) {
		return nanSeries(len(in))
	}
	out := talib.Sma(in, window)
	for i := 0; i < window-1; i++ {
		out[i] = math.NaN()
	}
	return out
}

// RollingStdDev is the rolling sample standard deviation (n-1 degrees of
// freedom) over window, NaN until window values are available. A window of
// one has no sample deviation and is NaN throughout.
func RollingStdDev(in []float64, window int) []float64 {
	if window < 2 || window > len(in) {
		return nanSeries(len(in))
	}
	// talib returns the population deviation.
	out := talib.StdDev(in, window, 1.0)
	scale := math.Sqrt(float64(window) / float64(window-1))
	for i := range out {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] *= scale
	}
	return out
}

// EMA is an exponential moving average with alpha = 2/(span+1), seeded with
// the first non-NaN input and carried through later NaNs.
func EMA(in []float64, span int) []float64 {
	out := nanSeries(len(in))
	alpha := 2 / (float64(span) + 1)
	prev := math.NaN()
	for i, v := range in {
		switch {
		case math.IsNaN(v):
		case math.IsNaN(prev):
			prev = v
		default:
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// RSI is the relative strength index with gains and losses smoothed by EMA
// over period. The first value is NaN; a flat stretch with no gains and no
// losses is NaN as well.
func RSI(prices []float64, period int) []float64 {
	up := nanSeries(len(prices))
	down := nanSeries(len(prices))
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		up[i] = math.Max(d, 0)
		down[i] = math.Max(-d, 0)
	}

	upE := EMA(up, period)
	downE := EMA(down, period)
	out := make([]float64, len(prices))
	for i := range out {
		rs := upE[i] / downE[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// crossAbove reports a move from at-or-below level to strictly above it.
func crossAbove(prev, cur, level float64) bool {
	return cur > level && prev <= level
}

// crossBelow reports a move from at-or-above level to strictly below it.
func crossBelow(prev, cur, level float64) bool {
	return cur < level && prev >= level
}
