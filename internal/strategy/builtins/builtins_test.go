package builtins

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgym/internal/domain"
	"quantgym/internal/strategy"
)

func days(n int) []time.Time {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.AddDate(0, 0, i)
	}
	return out
}

func series(t *testing.T, sym string, prices ...float64) domain.PriceSeries {
	t.Helper()
	ps, err := domain.NewPriceSeries(sym, days(len(prices)), prices)
	require.NoError(t, err)
	return ps
}

func signals(vals ...int) []domain.Signal {
	out := make([]domain.Signal, len(vals))
	for i, v := range vals {
		out[i] = domain.Signal(v)
	}
	return out
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 2)
	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDeltaSlice(t, []float64{1.5, 2.5, 3.5, 4.5}, got[1:], 1e-12)

	same := SMA([]float64{4, 5, 6}, 1)
	assert.InDeltaSlice(t, []float64{4, 5, 6}, same, 1e-12)

	tooLong := SMA([]float64{1, 2}, 5)
	assert.True(t, math.IsNaN(tooLong[0]) && math.IsNaN(tooLong[1]))
}

func TestRollingStdDev(t *testing.T) {
	got := RollingStdDev([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(got[0]) && math.IsNaN(got[1]))
	assert.InDeltaSlice(t, []float64{1, 1, 1}, got[2:], 1e-9)

	flat := RollingStdDev([]float64{7, 7, 7}, 2)
	assert.Equal(t, 0.0, flat[1])

	one := RollingStdDev([]float64{1, 2, 3}, 1)
	for _, v := range one {
		assert.True(t, math.IsNaN(v))
	}
}

func TestRollingStdDevTinyDeviation(t *testing.T) {
	// talib drops variances below 1e-14, so a near-constant window reads as
	// zero deviation and the z-score divides by one instead.
	spread := []float64{1, 1 + 1e-8, 1}
	assert.Equal(t, 0.0, RollingStdDev(spread, 3)[2])

	z := NewPairsZScore(3, 2, 0.5).ZScore(spread)
	assert.False(t, math.IsNaN(z[2]))
	assert.InDelta(t, 0, z[2], 1e-8)
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{math.NaN(), 1, 3, math.NaN(), 3}, 3)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDeltaSlice(t, []float64{1, 2, 2, 2.5}, got[1:], 1e-12)
}

func TestRSI(t *testing.T) {
	got := RSI([]float64{10, 9, 8, 9, 10, 11, 10}, 3)
	require.Len(t, got, 7)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDeltaSlice(t, []float64{0, 0, 50, 75, 87.5, 43.75}, got[1:], 1e-9)

	flat := RSI([]float64{5, 5, 5}, 3)
	assert.True(t, math.IsNaN(flat[2]))

	rising := RSI([]float64{1, 2, 3}, 3)
	assert.Equal(t, 100.0, rising[2])
}

func TestSMACrossCarriesForward(t *testing.T) {
	s := NewSMACross(1, 2)

	out, err := s.Generate(series(t, "X", 1, 2, 3, 4, 3, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, signals(0, 0, 0, 0, -1, -1, -1), out.Values)

	out, err = s.Generate(series(t, "X", 3, 2, 1, 2, 3, 4, 3, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, signals(0, 0, 0, 1, 1, 1, -1, -1, -1), out.Values)
	assert.Len(t, out.Times, 9)
}

func TestSMACrossShortInput(t *testing.T) {
	out, err := NewSMACross(20, 50).Generate(series(t, "X", 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, signals(0, 0, 0), out.Values)
}

func TestRSIMeanRev(t *testing.T) {
	r := NewRSIMeanRev(3, 30, 70)

	changes := r.Changes([]float64{10, 9, 8, 9, 10, 11, 10})
	assert.Equal(t, []strategy.Change{
		strategy.NoChange, strategy.NoChange, strategy.NoChange,
		strategy.EnterLong, strategy.Exit, strategy.NoChange, strategy.EnterShort,
	}, changes)

	out, err := r.Generate(series(t, "X", 10, 9, 8, 9, 10, 11, 10))
	require.NoError(t, err)
	assert.Equal(t, signals(0, 0, 0, 1, 1, 1, -1), out.Values)
}

func TestPairsZScore(t *testing.T) {
	p := NewPairsZScore(3, 1, 0.5)

	aTimes := days(9)
	a, err := domain.NewPriceSeries("A", aTimes, []float64{100, 100, 100, 100, 100, 110, 110, 110, 100})
	require.NoError(t, err)
	// B has one extra day that the join drops.
	bPrices := make([]float64, 10)
	for i := range bPrices {
		bPrices[i] = 100
	}
	b, err := domain.NewPriceSeries("B", days(10), bPrices)
	require.NoError(t, err)

	pos, err := p.GeneratePairs(a, b)
	require.NoError(t, err)
	require.Equal(t, 9, pos.Len())
	assert.Equal(t, []strategy.Change{
		strategy.NoChange, strategy.NoChange, strategy.NoChange, strategy.NoChange, strategy.NoChange,
		strategy.EnterShort, strategy.NoChange, strategy.Exit, strategy.EnterLong,
	}, p.Changes([]float64{0, 0, 0, 0, 0, 10, 10, 10, 0}))
	// The exit bar at 7 keeps the short; only the long entry reverses it.
	assert.Equal(t, signals(0, 0, 0, 0, 0, -1, -1, -1, 1), pos.A)
	for i := range pos.A {
		assert.Equal(t, -pos.A[i], pos.B[i], "pos_b[%d]", i)
	}
	assert.Equal(t, aTimes, pos.Times)
}

func TestPairsZScoreLegsOffset(t *testing.T) {
	n := 120
	pa := make([]float64, n)
	pb := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		pa[i] = 100 + 8*math.Sin(x/5) + 3*math.Cos(x/2.3)
		pb[i] = 90 + 0.1*x
	}
	a, err := domain.NewPriceSeries("A", days(n), pa)
	require.NoError(t, err)
	b, err := domain.NewPriceSeries("B", days(n), pb)
	require.NoError(t, err)

	pos, err := NewPairsZScore(DefaultPairsWindow, 1.0, DefaultExitZ).GeneratePairs(a, b)
	require.NoError(t, err)
	require.Equal(t, n, pos.Len())

	var active int
	for i := range pos.A {
		assert.Equal(t, -pos.A[i], pos.B[i], "pos_b[%d]", i)
		if pos.A[i] != 0 {
			active++
		}
	}
	assert.Positive(t, active)
}

func TestPairsZScoreNoOverlap(t *testing.T) {
	a := series(t, "A", 1, 2)
	b, err := domain.NewPriceSeries("B", days(5)[3:], []float64{1, 2})
	require.NoError(t, err)

	_, err = NewPairsZScore(3, 2, 0.5).GeneratePairs(a, b)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestValidate(t *testing.T) {
	ps := series(t, "X", 1, 2, 3)

	tests := []struct {
		name  string
		run   func() error
		input string
	}{
		{"sma short", func() error { _, err := NewSMACross(0, 5).Generate(ps); return err }, "short_window"},
		{"sma long", func() error { _, err := NewSMACross(2, -1).Generate(ps); return err }, "long_window"},
		{"rsi period", func() error { _, err := NewRSIMeanRev(0, 30, 70).Generate(ps); return err }, "period"},
		{"rsi bands", func() error { _, err := NewRSIMeanRev(14, 70, 30).Generate(ps); return err }, "low"},
		{"pairs window", func() error { _, err := NewPairsZScore(0, 2, 0.5).GeneratePairs(ps, ps); return err }, "window"},
		{"pairs entry", func() error { _, err := NewPairsZScore(5, 0, 0.5).GeneratePairs(ps, ps); return err }, "entry_z"},
		{"pairs exit", func() error { _, err := NewPairsZScore(5, 2, -1).GeneratePairs(ps, ps); return err }, "exit_z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ie *domain.InputError
			require.ErrorAs(t, tt.run(), &ie)
			assert.Equal(t, tt.input, ie.Input)
		})
	}
}

func TestRegisterDefaults(t *testing.T) {
	reg := strategy.NewRegistry()
	RegisterDefaults(reg)

	assert.Equal(t, []string{"pairs-zscore", "rsi-meanrev", "sma-cross"}, reg.List())

	_, err := reg.Generator("sma-cross")
	assert.NoError(t, err)
	_, err = reg.Generator("rsi-meanrev")
	assert.NoError(t, err)
	_, err = reg.PairGenerator("pairs-zscore")
	assert.NoError(t, err)
}
