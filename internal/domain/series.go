package domain

import (
	"math"
	"sort"
	"time"
)

// PriceSeries is an immutable, strictly time-ordered sequence of positive
// prices. Build it with NewPriceSeries or PriceSeriesFromBars.
type PriceSeries struct {
	Symbol string
	Times  []time.Time
	Prices []float64
}

// NewPriceSeries validates and copies the given columns.
func NewPriceSeries(symbol string, times []time.Time, prices []float64) (PriceSeries, error) {
	if len(times) != len(prices) {
		return PriceSeries{}, Invalid("price", -1, "%d timestamps but %d prices", len(times), len(prices))
	}
	if len(times) == 0 {
		return PriceSeries{}, Invalid("price", -1, "empty series")
	}
	for i, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return PriceSeries{}, Invalid("price", i, "price %v is not a positive finite number", p)
		}
		if i > 0 && !times[i].After(times[i-1]) {
			return PriceSeries{}, Invalid("price", i, "timestamp %s does not follow %s",
				times[i].Format(time.RFC3339), times[i-1].Format(time.RFC3339))
		}
	}

	ps := PriceSeries{
		Symbol: symbol,
		Times:  make([]time.Time, len(times)),
		Prices: make([]float64, len(prices)),
	}
	copy(ps.Times, times)
	copy(ps.Prices, prices)
	return ps, nil
}

// PriceSeriesFromBars builds a close-price series from bars of one symbol.
// Bars are sorted by timestamp first; duplicates are rejected.
func PriceSeriesFromBars(symbol string, bars []Bar) (PriceSeries, error) {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	times := make([]time.Time, len(sorted))
	closes := make([]float64, len(sorted))
	for i, b := range sorted {
		times[i] = b.Timestamp
		closes[i] = b.Close
	}
	return NewPriceSeries(symbol, times, closes)
}

// Len returns the number of points.
func (ps PriceSeries) Len() int { return len(ps.Prices) }

// indexOf maps each timestamp to its position.
func (ps PriceSeries) indexOf() map[int64]int {
	idx := make(map[int64]int, len(ps.Times))
	for i, t := range ps.Times {
		idx[t.UnixNano()] = i
	}
	return idx
}

// Reindex returns the prices at the given timestamps, NaN where the series
// has no value.
func (ps PriceSeries) Reindex(times []time.Time) []float64 {
	idx := ps.indexOf()
	out := make([]float64, len(times))
	for i, t := range times {
		if j, ok := idx[t.UnixNano()]; ok {
			out[i] = ps.Prices[j]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// JoinPrices aligns two series on the timestamps present in both, in
// ascending order.
func JoinPrices(a, b PriceSeries) (times []time.Time, pa, pb []float64) {
	idx := b.indexOf()
	for i, t := range a.Times {
		j, ok := idx[t.UnixNano()]
		if !ok {
			continue
		}
		times = append(times, t)
		pa = append(pa, a.Prices[i])
		pb = append(pb, b.Prices[j])
	}
	return times, pa, pb
}

// SignalSeries is a target position per timestamp.
type SignalSeries struct {
	Times  []time.Time
	Values []Signal
}

// Len returns the number of samples.
func (s SignalSeries) Len() int { return len(s.Values) }

// Align reindexes the series onto times. Timestamps without a sample become
// SignalFlat.
func (s SignalSeries) Align(times []time.Time) (SignalSeries, error) {
	if len(s.Times) != len(s.Values) {
		return SignalSeries{}, Invalid("signals", -1, "%d timestamps but %d values", len(s.Times), len(s.Values))
	}
	idx := make(map[int64]Signal, len(s.Times))
	for i, t := range s.Times {
		v := s.Values[i]
		if v < SignalShort || v > SignalLong {
			return SignalSeries{}, Invalid("signals", i, "signal %d outside {-1, 0, 1}", v)
		}
		idx[t.UnixNano()] = v
	}

	out := SignalSeries{
		Times:  make([]time.Time, len(times)),
		Values: make([]Signal, len(times)),
	}
	copy(out.Times, times)
	for i, t := range times {
		out.Values[i] = idx[t.UnixNano()]
	}
	return out, nil
}
