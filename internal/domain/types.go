// Package domain defines the data types shared by the simulator, the metrics
// engine, the strategy generators and the data collaborators.
package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Bar is a daily OHLCV bar as delivered by a market-data source.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Signal is a target position direction for one timestamp. It is not an
// order: the simulator decides whether a target requires a trade.
type Signal int8

const (
	SignalShort Signal = -1
	SignalFlat  Signal = 0
	SignalLong  Signal = 1
)

// String returns "long", "flat" or "short".
func (s Signal) String() string {
	switch {
	case s > 0:
		return "long"
	case s < 0:
		return "short"
	default:
		return "flat"
	}
}

// TradeKind distinguishes position openings from closings.
type TradeKind string

const (
	TradeEnter TradeKind = "enter"
	TradeExit  TradeKind = "exit"
)

// TradeEvent is an immutable record appended to the simulator's trade log
// whenever a position opens or closes.
type TradeEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Index      int       `json:"index"`
	Kind       TradeKind `json:"kind"`
	Size       float64   `json:"size"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
	CashAfter  float64   `json:"cash_after"`
}

// EquityCurve holds one marked-to-market equity value per price timestamp.
type EquityCurve struct {
	Times  []time.Time
	Values []float64
}

// Len returns the number of points in the curve.
func (c EquityCurve) Len() int { return len(c.Values) }

// Last returns the final equity value, or 0 for an empty curve.
func (c EquityCurve) Last() float64 {
	if len(c.Values) == 0 {
		return 0
	}
	return c.Values[len(c.Values)-1]
}

// Normalize returns the curve divided by its first value. An empty curve or
// one starting at zero is returned unchanged.
func (c EquityCurve) Normalize() EquityCurve {
	if len(c.Values) == 0 || c.Values[0] == 0 {
		return c
	}
	base := c.Values[0]
	out := EquityCurve{
		Times:  c.Times,
		Values: make([]float64, len(c.Values)),
	}
	for i, v := range c.Values {
		out.Values[i] = v / base
	}
	return out
}

// Metrics is the fixed set of risk/return statistics derived from an equity
// curve. Percentages are fractions (0.15 = 15%). Sharpe is NaN when the
// annualized volatility is zero.
type Metrics struct {
	TotalReturn float64 `json:"total_return"`
	AnnReturn   float64 `json:"ann_return"`
	AnnVol      float64 `json:"ann_vol"`
	Sharpe      float64 `json:"sharpe"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// SharpeDefined reports whether the Sharpe ratio carries a value.
func (m Metrics) SharpeDefined() bool {
	return !math.IsNaN(m.Sharpe)
}

// MarshalJSON encodes non-finite values as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]*float64{
		"total_return": finite(m.TotalReturn),
		"ann_return":   finite(m.AnnReturn),
		"ann_vol":      finite(m.AnnVol),
		"sharpe":       finite(m.Sharpe),
		"max_drawdown": finite(m.MaxDrawdown),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// PairPositions is the output of a pairs generator: offsetting positions in
// the two legs, on the timestamps where both price series have a value.
type PairPositions struct {
	Times []time.Time
	A     []Signal
	B     []Signal
}

// Len returns the number of aligned timestamps.
func (p PairPositions) Len() int { return len(p.Times) }
