// Package pairs turns the two position series of a pairs strategy into one
// combined equity curve.
package pairs

import (
	"math"
	"time"

	"quantgym/internal/domain"
)

// Combined is the two-leg equity of a pairs run. LegA and LegB are the
// marked value of each leg per timestamp; Idle is the capital not committed
// to either leg at the first timestamp. It earns nothing and is constant.
type Combined struct {
	Equity domain.EquityCurve
	LegA   []float64
	LegB   []float64
	Idle   float64
}

// Combine splits initialCash into two notionals of initialCash/2 and marks
// each leg as notional * price/firstPrice * position. Prices are reindexed
// onto the position timestamps; a timestamp with no price contributes
// nothing to that leg.
func Combine(a, b domain.PriceSeries, pos domain.PairPositions, initialCash float64) (Combined, error) {
	if math.IsNaN(initialCash) || math.IsInf(initialCash, 0) || initialCash <= 0 {
		return Combined{}, domain.Invalid("initial_cash", -1, "must be > 0, got %v", initialCash)
	}
	n := pos.Len()
	if n == 0 {
		return Combined{}, domain.Invalid("positions", -1, "empty position series")
	}
	if len(pos.A) != n || len(pos.B) != n {
		return Combined{}, domain.Invalid("positions", -1, "%d timestamps, %d A and %d B positions", n, len(pos.A), len(pos.B))
	}

	notional := initialCash / 2
	pa := a.Reindex(pos.Times)
	pb := b.Reindex(pos.Times)

	legA, err := legValue("price_a", pa, pos.A, notional)
	if err != nil {
		return Combined{}, err
	}
	legB, err := legValue("price_b", pb, pos.B, notional)
	if err != nil {
		return Combined{}, err
	}

	c := Combined{
		LegA: legA,
		LegB: legB,
		Idle: initialCash - notional*(math.Abs(float64(pos.A[0]))+math.Abs(float64(pos.B[0]))),
		Equity: domain.EquityCurve{
			Times:  make([]time.Time, n),
			Values: make([]float64, n),
		},
	}
	copy(c.Equity.Times, pos.Times)
	for i := 0; i < n; i++ {
		c.Equity.Values[i] = legA[i] + legB[i] + c.Idle
	}
	return c, nil
}

// legValue marks one leg relative to its first available price.
func legValue(input string, prices []float64, pos []domain.Signal, notional float64) ([]float64, error) {
	base := math.NaN()
	for _, p := range prices {
		if !math.IsNaN(p) {
			base = p
			break
		}
	}
	if math.IsNaN(base) {
		return nil, domain.Invalid(input, -1, "no price on any position timestamp")
	}

	out := make([]float64, len(prices))
	for i, p := range prices {
		if math.IsNaN(p) {
			continue
		}
		out[i] = notional * (p / base) * float64(pos[i])
	}
	return out, nil
}
