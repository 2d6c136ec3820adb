// Package report renders backtest results for the terminal and exports
// equity curves for external charting.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"quantgym/internal/metrics"
	"quantgym/internal/strategy"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	nameStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	plainStyle  = lipgloss.NewStyle()
)

type column struct {
	title string
	width int
}

var columns = []column{
	{"STRATEGY", 14},
	{"SYMBOLS", 12},
	{"TOTAL", 9},
	{"ANN RET", 9},
	{"ANN VOL", 9},
	{"SHARPE", 7},
	{"MAX DD", 9},
	{"TRIPS", 6},
	{"WIN", 7},
	{"PF", 7},
	{"FINAL", 13},
}

// Label identifies a result as "strategy SYM" or "strategy A/B".
func Label(r strategy.BacktestResult) string {
	return r.Strategy + " " + strings.Join(r.Symbols, "/")
}

// Table renders one row per result. Returns are coloured by sign and
// undefined values are shown dimmed as "n/a".
func Table(results []strategy.BacktestResult) string {
	var b strings.Builder

	var hdr strings.Builder
	for i, c := range columns {
		if i > 0 {
			hdr.WriteString(" ")
		}
		hdr.WriteString(pad(c.title, c.width, i < 2))
	}
	b.WriteString(headerStyle.Render(hdr.String()))
	b.WriteString("\n")

	for _, r := range results {
		m := r.Metrics
		cells := []string{
			nameStyle.Render(pad(r.Strategy, columns[0].width, true)),
			plainStyle.Render(pad(strings.Join(r.Symbols, "/"), columns[1].width, true)),
			signed(FormatPercent(m.TotalReturn), m.TotalReturn, columns[2].width),
			signed(FormatPercent(m.AnnReturn), m.AnnReturn, columns[3].width),
			number(FormatPercent(m.AnnVol), m.AnnVol, columns[4].width),
			signed(formatFloat(m.Sharpe, 2), m.Sharpe, columns[5].width),
			signed(FormatPercent(m.MaxDrawdown), m.MaxDrawdown, columns[6].width),
		}
		cells = append(cells, tradeCells(r)...)
		cells = append(cells, plainStyle.Render(pad(fmt.Sprintf("%.2f", r.Equity.Last()), columns[10].width, false)))

		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n")
	}
	return b.String()
}

// tradeCells renders round trips, win rate and profit factor. Pairs runs
// have no trade log and show dimmed placeholders.
func tradeCells(r strategy.BacktestResult) []string {
	if len(r.Trades) == 0 && r.Stats.RoundTrips == 0 {
		return []string{
			dimStyle.Render(pad("-", columns[7].width, false)),
			dimStyle.Render(pad("-", columns[8].width, false)),
			dimStyle.Render(pad("-", columns[9].width, false)),
		}
	}
	st := r.Stats
	pf := formatFloat(st.ProfitFactor, 2)
	if st.ProfitFactor >= metrics.ProfitFactorCap {
		pf = "inf"
	}
	winRate := FormatPercent(st.WinRate)
	if st.RoundTrips == 0 {
		winRate = "n/a"
	}
	return []string{
		plainStyle.Render(pad(fmt.Sprint(st.RoundTrips), columns[7].width, false)),
		number(winRate, st.WinRate, columns[8].width),
		number(pf, st.ProfitFactor, columns[9].width),
	}
}

// FormatPercent formats a fraction as a percentage with two decimals.
func FormatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

func signed(text string, v float64, width int) string {
	cell := pad(text, width, false)
	switch {
	case math.IsNaN(v):
		return dimStyle.Render(cell)
	case v > 0:
		return gainStyle.Render(cell)
	case v < 0:
		return lossStyle.Render(cell)
	default:
		return plainStyle.Render(cell)
	}
}

func number(text string, v float64, width int) string {
	cell := pad(text, width, false)
	if math.IsNaN(v) || text == "n/a" {
		return dimStyle.Render(cell)
	}
	return plainStyle.Render(cell)
}

// pad truncates or pads s to exactly width runes.
func pad(s string, width int, left bool) string {
	r := []rune(s)
	if len(r) > width {
		if width <= 1 {
			return string(r[:width])
		}
		return string(r[:width-1]) + "~"
	}
	fill := strings.Repeat(" ", width-len(r))
	if left {
		return s + fill
	}
	return fill + s
}
