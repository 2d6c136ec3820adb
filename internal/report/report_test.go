package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgym/internal/domain"
	"quantgym/internal/metrics"
	"quantgym/internal/strategy"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 2+n, 0, 0, 0, 0, time.UTC)
}

func sampleResults() []strategy.BacktestResult {
	single := strategy.BacktestResult{
		Strategy: "sma-cross",
		Symbols:  []string{"SPY"},
		Equity: domain.EquityCurve{
			Times:  []time.Time{day(0), day(1), day(2)},
			Values: []float64{1000, 1100, 1050},
		},
		Metrics: domain.Metrics{TotalReturn: 0.05, AnnReturn: 0.42, AnnVol: 0.3, Sharpe: 1.4, MaxDrawdown: -0.0454},
		Trades: []domain.TradeEvent{
			{Timestamp: day(0), Kind: domain.TradeEnter, Size: 10, Price: 100, CashAfter: 0},
			{Timestamp: day(2), Index: 2, Kind: domain.TradeExit, Size: 10, Price: 105, CashAfter: 1050},
		},
		Stats: metrics.TradeStats{RoundTrips: 1, Wins: 1, WinRate: 1, ProfitFactor: metrics.ProfitFactorCap, GrossProfit: 50},
	}
	pair := strategy.BacktestResult{
		Strategy: "pairs-zscore",
		Symbols:  []string{"KO", "PEP"},
		Equity: domain.EquityCurve{
			Times:  []time.Time{day(1), day(2), day(3)},
			Values: []float64{2000, 2000, 2000},
		},
		Metrics: domain.Metrics{Sharpe: math.NaN()},
		Idle:    2000,
	}
	return []strategy.BacktestResult{single, pair}
}

func TestTableContainsEveryMetric(t *testing.T) {
	out := Table(sampleResults())

	for _, want := range []string{
		"STRATEGY", "SHARPE", "MAX DD",
		"sma-cross", "SPY", "5.00%", "42.00%", "30.00%", "1.40", "-4.54%", "100.00%", "inf", "1050.00",
		"pairs-zscore", "KO/PEP", "n/a", "2000.00",
	} {
		assert.Contains(t, out, want)
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "21.00%", FormatPercent(0.21))
	assert.Equal(t, "-100.00%", FormatPercent(-1))
	assert.Equal(t, "n/a", FormatPercent(math.NaN()))
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", pad("ab", 4, true))
	assert.Equal(t, "  ab", pad("ab", 4, false))
	assert.Equal(t, "abc~", pad("abcdef", 4, true))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults(), true))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, []string{"date", "sma-cross SPY", "pairs-zscore KO/PEP"}, rows[0])
	assert.Equal(t, []string{"2024-01-02", "1", ""}, rows[1])
	assert.Equal(t, []string{"2024-01-03", "1.1", "1"}, rows[2])
	assert.Equal(t, []string{"2024-01-05", "", "1"}, rows[4])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResults(), false))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)

	single := decoded[0]
	assert.Equal(t, "sma-cross", single["strategy"])
	assert.InDelta(t, 1.4, single["metrics"].(map[string]any)["sharpe"], 1e-12)
	assert.Len(t, single["equity"], 3)
	assert.Len(t, single["trades"], 2)
	assert.NotContains(t, single, "idle")

	pair := decoded[1]
	assert.Nil(t, pair["metrics"].(map[string]any)["sharpe"])
	assert.InDelta(t, 2000, pair["idle"], 1e-12)
	assert.NotContains(t, pair, "trade_stats")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "out", "curves.csv")
	require.NoError(t, WriteFile(path, sampleResults(), false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024-01-03,1100,2000")

	require.NoError(t, WriteFile(filepath.Join(dir, "curves.json"), sampleResults(), false))

	assert.Error(t, WriteFile(filepath.Join(dir, "curves.xlsx"), sampleResults(), false))
}
