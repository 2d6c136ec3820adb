// Package engine simulates a single trader's cash and position over a price
// series driven by a target-position signal series.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"quantgym/internal/domain"
)

// PositionState is the tag of the simulator's state machine.
type PositionState int

const (
	StateFlat PositionState = iota
	StateLong
	StateShort
)

func (s PositionState) String() string {
	switch s {
	case StateLong:
		return "long"
	case StateShort:
		return "short"
	default:
		return "flat"
	}
}

// position is the mutable state of one run. size == 0 iff entryPrice == 0.
type position struct {
	state      PositionState
	cash       float64
	size       float64
	entryPrice float64
}

// Simulator runs the enter/exit state machine over one price series at a
// time. A Simulator is not safe for concurrent use; create one per run.
type Simulator struct {
	cfg    Config
	sizer  *RiskSizer
	logger *slog.Logger

	pos    position
	trades []domain.TradeEvent
}

// NewSimulator validates cfg and returns a Simulator ready to run.
func NewSimulator(cfg Config) (*Simulator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{
		cfg:    cfg,
		sizer:  NewRiskSizer(cfg.InitialCash, cfg.RiskFraction),
		logger: slog.Default().With("component", "engine"),
	}, nil
}

// WithLogger replaces the simulator's logger.
func (s *Simulator) WithLogger(l *slog.Logger) *Simulator {
	if l != nil {
		s.logger = l
	}
	return s
}

// Config returns the effective configuration, defaults applied.
func (s *Simulator) Config() Config { return s.cfg }

// Run resets the simulator and steps through prices. Signals are aligned to
// the price timestamps first; timestamps with no signal count as flat.
// Inputs are validated before the first step, so a failed run leaves an
// empty trade log.
func (s *Simulator) Run(prices domain.PriceSeries, signals domain.SignalSeries) (domain.EquityCurve, error) {
	s.pos = position{cash: s.cfg.InitialCash}
	s.trades = nil

	if err := validatePrices(prices); err != nil {
		return domain.EquityCurve{}, err
	}
	aligned, err := signals.Align(prices.Times)
	if err != nil {
		return domain.EquityCurve{}, fmt.Errorf("aligning signals: %w", err)
	}

	curve := domain.EquityCurve{
		Times:  make([]time.Time, prices.Len()),
		Values: make([]float64, prices.Len()),
	}
	copy(curve.Times, prices.Times)

	for i, p := range prices.Prices {
		sig := aligned.Values[i]

		if s.pos.state != StateFlat && sig == domain.SignalFlat {
			s.exit(prices, i, p)
		}
		if s.pos.state == StateFlat && sig != domain.SignalFlat {
			s.enter(prices, i, p, sig)
		}

		curve.Values[i] = s.pos.cash + s.pos.size*p
	}

	s.logger.Info("simulation complete",
		"symbol", prices.Symbol,
		"bars", prices.Len(),
		"trades", len(s.trades),
		"final_equity", curve.Last(),
	)
	return curve, nil
}

func (s *Simulator) enter(prices domain.PriceSeries, i int, p float64, sig domain.Signal) {
	size := s.sizer.Size(p, sig)
	fee := s.cfg.CommissionModel.Cost(s.cfg.CommissionRate, size, p)

	s.pos.cash -= size*p + fee
	s.pos.size = size
	s.pos.entryPrice = p
	if sig > 0 {
		s.pos.state = StateLong
	} else {
		s.pos.state = StateShort
	}
	s.record(prices, i, domain.TradeEnter, size, p, fee)
}

func (s *Simulator) exit(prices domain.PriceSeries, i int, p float64) {
	size := s.pos.size
	fee := s.cfg.CommissionModel.Cost(s.cfg.CommissionRate, size, p)

	s.pos.cash += size*p - fee
	s.pos.size = 0
	s.pos.entryPrice = 0
	s.pos.state = StateFlat
	s.record(prices, i, domain.TradeExit, size, p, fee)
}

func (s *Simulator) record(prices domain.PriceSeries, i int, kind domain.TradeKind, size, p, fee float64) {
	ev := domain.TradeEvent{
		Timestamp:  prices.Times[i],
		Index:      i,
		Kind:       kind,
		Size:       size,
		Price:      p,
		Commission: fee,
		CashAfter:  s.pos.cash,
	}
	s.trades = append(s.trades, ev)
	s.logger.Debug("trade",
		"kind", kind,
		"index", i,
		"size", size,
		"price", p,
		"commission", fee,
		"cash_after", s.pos.cash,
	)
}

// Trades returns a copy of the trade log of the last run.
func (s *Simulator) Trades() []domain.TradeEvent {
	out := make([]domain.TradeEvent, len(s.trades))
	copy(out, s.trades)
	return out
}

// State returns the position state left by the last run.
func (s *Simulator) State() PositionState { return s.pos.state }
