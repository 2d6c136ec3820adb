package builtins

import (
	"math"

	"quantgym/internal/domain"
	"quantgym/internal/strategy"
)

var _ strategy.PairGenerator = (*PairsZScore)(nil)

// PairsZScore trades the spread a - b on its rolling z-score: short the
// spread when z breaks above entryZ and long when it breaks below -entryZ.
// A bar where |z| falls back under exitZ is an exit bar; it cancels an entry
// on the same bar and otherwise leaves the held position alone.
type PairsZScore struct {
	window int
	entryZ float64
	exitZ  float64
}

// NewPairsZScore creates a pairs z-score strategy.
func NewPairsZScore(window int, entryZ, exitZ float64) *PairsZScore {
	return &PairsZScore{window: window, entryZ: entryZ, exitZ: exitZ}
}

// Name returns "pairs-zscore".
func (p *PairsZScore) Name() string { return "pairs-zscore" }

// Validate checks window >= 1, entryZ > 0 and exitZ >= 0.
func (p *PairsZScore) Validate() error {
	if p.window < 1 {
		return domain.Invalid("window", -1, "must be >= 1, got %d", p.window)
	}
	if !(p.entryZ > 0) {
		return domain.Invalid("entry_z", -1, "must be > 0, got %v", p.entryZ)
	}
	if !(p.exitZ >= 0) {
		return domain.Invalid("exit_z", -1, "must be >= 0, got %v", p.exitZ)
	}
	return nil
}

// GeneratePairs inner-joins a and b on timestamp and returns pos_a and
// pos_b = -pos_a on the joined index.
func (p *PairsZScore) GeneratePairs(a, b domain.PriceSeries) (domain.PairPositions, error) {
	if err := p.Validate(); err != nil {
		return domain.PairPositions{}, err
	}
	times, pa, pb := domain.JoinPrices(a, b)
	if len(times) == 0 {
		return domain.PairPositions{}, domain.Invalid("price", -1, "%s and %s share no timestamps", a.Symbol, b.Symbol)
	}

	spread := make([]float64, len(times))
	for i := range spread {
		spread[i] = pa[i] - pb[i]
	}
	held := strategy.HoldPositions(p.Changes(spread))

	out := domain.PairPositions{
		Times: times,
		A:     held,
		B:     make([]domain.Signal, len(held)),
	}
	for i, s := range held {
		out.B[i] = -s
	}
	return out, nil
}

// ZScore returns the rolling z-score of spread. A zero deviation is replaced
// by one.
func (p *PairsZScore) ZScore(spread []float64) []float64 {
	mean := SMA(spread, p.window)
	std := RollingStdDev(spread, p.window)

	z := make([]float64, len(spread))
	for i := range spread {
		sd := std[i]
		if sd == 0 {
			sd = 1
		}
		z[i] = (spread[i] - mean[i]) / sd
	}
	return z
}

// Changes marks the z-score crossings. Later rules win on the same bar.
func (p *PairsZScore) Changes(spread []float64) []strategy.Change {
	z := p.ZScore(spread)

	changes := make([]strategy.Change, len(spread))
	for i := 1; i < len(spread); i++ {
		prev, cur := z[i-1], z[i]
		if crossAbove(prev, cur, p.entryZ) {
			changes[i] = strategy.EnterShort
		}
		if crossBelow(prev, cur, -p.entryZ) {
			changes[i] = strategy.EnterLong
		}
		if crossBelow(math.Abs(prev), math.Abs(cur), p.exitZ) {
			changes[i] = strategy.Exit
		}
	}
	return changes
}
