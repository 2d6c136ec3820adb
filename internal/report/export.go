package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"quantgym/internal/domain"
	"quantgym/internal/metrics"
	"quantgym/internal/strategy"
)

// WriteCSV writes one row per timestamp in the union of all curves and one
// column per result. Cells for timestamps a curve lacks are left empty. With
// normalize set every curve is divided by its first value.
func WriteCSV(w io.Writer, results []strategy.BacktestResult, normalize bool) error {
	curves := make([]domain.EquityCurve, len(results))
	for i, r := range results {
		curves[i] = r.Equity
		if normalize {
			curves[i] = r.Equity.Normalize()
		}
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(results)+1)
	header = append(header, "date")
	for _, r := range results {
		header = append(header, Label(r))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	lookup := make([]map[int64]float64, len(curves))
	for i, c := range curves {
		lookup[i] = make(map[int64]float64, c.Len())
		for j, t := range c.Times {
			lookup[i][t.UnixNano()] = c.Values[j]
		}
	}

	row := make([]string, len(results)+1)
	for _, t := range unionTimes(curves) {
		row[0] = t.Format(time.DateOnly)
		for i := range curves {
			row[i+1] = ""
			if v, ok := lookup[i][t.UnixNano()]; ok {
				row[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func unionTimes(curves []domain.EquityCurve) []time.Time {
	seen := make(map[int64]time.Time)
	for _, c := range curves {
		for _, t := range c.Times {
			seen[t.UnixNano()] = t
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

type equityPoint struct {
	Time   time.Time `json:"t"`
	Equity float64   `json:"equity"`
}

type resultJSON struct {
	Strategy string              `json:"strategy"`
	Symbols  []string            `json:"symbols"`
	Metrics  domain.Metrics      `json:"metrics"`
	Stats    *metrics.TradeStats `json:"trade_stats,omitempty"`
	Idle     *float64            `json:"idle,omitempty"`
	Trades   []domain.TradeEvent `json:"trades,omitempty"`
	Equity   []equityPoint       `json:"equity"`
}

// WriteJSON writes the results as an indented JSON array. Undefined metrics
// are encoded as null.
func WriteJSON(w io.Writer, results []strategy.BacktestResult, normalize bool) error {
	out := make([]resultJSON, len(results))
	for i, r := range results {
		curve := r.Equity
		if normalize {
			curve = curve.Normalize()
		}
		rj := resultJSON{
			Strategy: r.Strategy,
			Symbols:  r.Symbols,
			Metrics:  r.Metrics,
			Trades:   r.Trades,
			Equity:   make([]equityPoint, curve.Len()),
		}
		if len(r.Symbols) == 2 {
			idle := r.Idle
			rj.Idle = &idle
		} else {
			stats := r.Stats
			rj.Stats = &stats
		}
		for j := range curve.Values {
			rj.Equity[j] = equityPoint{Time: curve.Times[j], Equity: curve.Values[j]}
		}
		out[i] = rj
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}

// WriteFile writes results to path, choosing CSV or JSON by extension.
func WriteFile(path string, results []strategy.BacktestResult, normalize bool) error {
	var write func(io.Writer, []strategy.BacktestResult, bool) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		write = WriteCSV
	case ".json":
		write = WriteJSON
	default:
		return fmt.Errorf("unsupported report format %q (want .csv or .json)", filepath.Ext(path))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, results, normalize); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
