package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"quantgym/internal/domain"
	"quantgym/internal/engine"
	"quantgym/internal/metrics"
	"quantgym/internal/pairs"
	"quantgym/internal/store"
)

// Request names one backtest: a strategy, the symbols it trades (one, or two
// for a pairs strategy) and the date range to load.
type Request struct {
	Strategy string
	Symbols  []string
	Start    time.Time
	End      time.Time
}

func (r Request) String() string {
	return fmt.Sprintf("%s[%s]", r.Strategy, strings.Join(r.Symbols, ","))
}

// BacktestResult holds the curve and summary statistics of one run. Pairs
// runs carry no trade log; Idle is set only for them.
type BacktestResult struct {
	Strategy string
	Symbols  []string
	Equity   domain.EquityCurve
	Metrics  domain.Metrics
	Trades   []domain.TradeEvent
	Stats    metrics.TradeStats
	Idle     float64
}

// Backtester loads close prices from a bar store, runs them through a
// registered generator and the simulator, and computes metrics.
type Backtester struct {
	store       store.BarStore
	registry    *Registry
	cfg         engine.Config
	parallelism int
	logger      *slog.Logger
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry. cfg is validated on every
// run.
func NewBacktester(barStore store.BarStore, registry *Registry, cfg engine.Config) *Backtester {
	return &Backtester{
		store:       barStore,
		registry:    registry,
		cfg:         cfg,
		parallelism: 4,
		logger:      slog.Default().With("component", "backtest"),
	}
}

// WithLogger replaces the backtester's logger.
func (bt *Backtester) WithLogger(l *slog.Logger) *Backtester {
	if l != nil {
		bt.logger = l
	}
	return bt
}

// WithParallelism bounds the number of concurrent runs in Compare.
func (bt *Backtester) WithParallelism(n int) *Backtester {
	if n > 0 {
		bt.parallelism = n
	}
	return bt
}

// Run executes req against the bar store.
func (bt *Backtester) Run(ctx context.Context, req Request) (*BacktestResult, error) {
	switch len(req.Symbols) {
	case 1:
		prices, err := bt.loadPrices(ctx, req.Symbols[0], req.Start, req.End)
		if err != nil {
			return nil, err
		}
		return bt.RunPrices(req.Strategy, prices)
	case 2:
		a, err := bt.loadPrices(ctx, req.Symbols[0], req.Start, req.End)
		if err != nil {
			return nil, err
		}
		b, err := bt.loadPrices(ctx, req.Symbols[1], req.Start, req.End)
		if err != nil {
			return nil, err
		}
		return bt.RunPairPrices(req.Strategy, a, b)
	default:
		return nil, domain.Invalid("symbols", -1, "want 1 or 2 symbols, got %d", len(req.Symbols))
	}
}

// RunPrices runs a single-asset strategy over prices already in memory.
func (bt *Backtester) RunPrices(name string, prices domain.PriceSeries) (*BacktestResult, error) {
	gen, err := bt.registry.Generator(name)
	if err != nil {
		return nil, err
	}
	signals, err := gen.Generate(prices)
	if err != nil {
		return nil, fmt.Errorf("%s: generating signals: %w", name, err)
	}

	sim, err := engine.NewSimulator(bt.cfg)
	if err != nil {
		return nil, err
	}
	sim.WithLogger(bt.logger.With("strategy", name))

	curve, err := sim.Run(prices, signals)
	if err != nil {
		return nil, fmt.Errorf("%s: simulating %s: %w", name, prices.Symbol, err)
	}
	m, err := metrics.Compute(curve)
	if err != nil {
		return nil, fmt.Errorf("%s: computing metrics: %w", name, err)
	}
	trades := sim.Trades()

	bt.logger.Info("backtest complete",
		"strategy", name,
		"symbol", prices.Symbol,
		"total_return", m.TotalReturn,
		"trades", len(trades),
		"final_state", sim.State(),
		"commission_model", sim.Config().CommissionModel,
	)
	return &BacktestResult{
		Strategy: name,
		Symbols:  []string{prices.Symbol},
		Equity:   curve,
		Metrics:  m,
		Trades:   trades,
		Stats:    metrics.Trades(trades),
	}, nil
}

// RunPairPrices runs a pairs strategy over two price series and combines the
// legs into one equity curve.
func (bt *Backtester) RunPairPrices(name string, a, b domain.PriceSeries) (*BacktestResult, error) {
	gen, err := bt.registry.PairGenerator(name)
	if err != nil {
		return nil, err
	}
	pos, err := gen.GeneratePairs(a, b)
	if err != nil {
		return nil, fmt.Errorf("%s: generating positions: %w", name, err)
	}

	combined, err := pairs.Combine(a, b, pos, bt.cfg.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("%s: combining legs: %w", name, err)
	}
	m, err := metrics.Compute(combined.Equity)
	if err != nil {
		return nil, fmt.Errorf("%s: computing metrics: %w", name, err)
	}

	bt.logger.Info("pairs backtest complete",
		"strategy", name,
		"a", a.Symbol,
		"b", b.Symbol,
		"bars", pos.Len(),
		"total_return", m.TotalReturn,
	)
	return &BacktestResult{
		Strategy: name,
		Symbols:  []string{a.Symbol, b.Symbol},
		Equity:   combined.Equity,
		Metrics:  m,
		Idle:     combined.Idle,
	}, nil
}

// Compare runs every request concurrently and returns results in request
// order. The first failure cancels the remaining runs.
func (bt *Backtester) Compare(ctx context.Context, reqs []Request) ([]*BacktestResult, error) {
	results := make([]*BacktestResult, len(reqs))
	sem := make(chan struct{}, bt.parallelism)
	g, gctx := errgroup.WithContext(ctx)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			res, err := bt.Run(gctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", req, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (bt *Backtester) loadPrices(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error) {
	bars, err := bt.store.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("reading bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return domain.PriceSeries{}, domain.Invalid("price", -1, "no bars for %s between %s and %s",
			symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	ps, err := domain.PriceSeriesFromBars(strings.ToUpper(symbol), bars)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("bars for %s: %w", symbol, err)
	}
	bt.logger.Debug("loaded prices", "symbol", symbol, "bars", ps.Len())
	return ps, nil
}
