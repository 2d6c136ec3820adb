// Package metrics derives risk/return statistics from an equity curve and
// round-trip statistics from a trade log.
package metrics

import (
	"math"

	"quantgym/internal/domain"
)

// TradingDaysPerYear is the annualization factor for daily bars.
const TradingDaysPerYear = 252

// Compute returns the metrics of curve. A curve with a single point has zero
// annualized return and volatility; Sharpe is NaN whenever volatility is
// zero. The curve must be non-empty and start above zero.
func Compute(curve domain.EquityCurve) (domain.Metrics, error) {
	e := curve.Values
	n := len(e)
	if n == 0 {
		return domain.Metrics{}, domain.Invalid("equity", -1, "empty curve")
	}
	if math.IsNaN(e[0]) || math.IsInf(e[0], 0) || e[0] <= 0 {
		return domain.Metrics{}, domain.Invalid("equity", 0, "first value %v must be > 0", e[0])
	}

	m := domain.Metrics{
		TotalReturn: e[n-1]/e[0] - 1,
		Sharpe:      math.NaN(),
		MaxDrawdown: MaxDrawdown(e),
	}
	if n <= 1 {
		return m, nil
	}

	m.AnnReturn = math.Pow(1+m.TotalReturn, float64(TradingDaysPerYear)/float64(n)) - 1
	m.AnnVol = SampleStdDev(Returns(e)) * math.Sqrt(TradingDaysPerYear)
	if m.AnnVol != 0 {
		m.Sharpe = m.AnnReturn / m.AnnVol
	}
	return m, nil
}

// Returns computes simple period returns. The first element is 0.
func Returns(e []float64) []float64 {
	out := make([]float64, len(e))
	for i := 1; i < len(e); i++ {
		out[i] = e[i]/e[i-1] - 1
	}
	return out
}

// SampleStdDev is the standard deviation with n-1 degrees of freedom. It
// returns 0 for fewer than two values.
func SampleStdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	var ss float64
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

// MaxDrawdown returns the most negative drop from a running peak, as a
// fraction of that peak. It is 0 for a non-decreasing curve.
func MaxDrawdown(e []float64) float64 {
	var worst float64
	peak := math.Inf(-1)
	for _, v := range e {
		if v > peak {
			peak = v
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}
