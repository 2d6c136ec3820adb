package gather

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/markcheno/go-quote"

	"quantgym/internal/domain"
	"quantgym/internal/store"
	"quantgym/internal/util"
)

type fakeFetcher struct {
	mu       sync.Mutex
	data     map[string][]domain.Bar
	failures int   // transient failures before success
	fatal    error // returned on every call when set
	calls    [][]string
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) FetchDaily(_ context.Context, symbols []string, _ DateRange) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), symbols...))
	if f.fatal != nil {
		return nil, util.Permanent(f.fatal)
	}
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("temporary")
	}
	var out []domain.Bar
	for _, s := range symbols {
		out = append(out, f.data[s]...)
	}
	return out, nil
}

func (f *fakeFetcher) requested() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[string]int)
	for _, c := range f.calls {
		for _, s := range c {
			m[s]++
		}
	}
	return m
}

var testRange = DateRange{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
}

func testBars(symbol string, closes ...float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return out
}

func TestGathererRun(t *testing.T) {
	dir := t.TempDir()
	s := store.NewParquetStore(dir)
	f := &fakeFetcher{data: map[string][]domain.Bar{
		"SPY": testBars("SPY", 470, 472, 468),
		"QQQ": testBars("QQQ", 400, 401),
	}}
	g := New(f, s, Options{BatchSize: 2, MaxWorkers: 2, StateDir: dir, RetryDelay: time.Millisecond})

	sum, err := g.Run(context.Background(), []string{"spy", "QQQ", "NOPE", "SPY"}, testRange)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := Summary{Symbols: 3, Hits: 2, Empty: 1, Bars: 5}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}

	got, err := s.ReadBars(context.Background(), "SPY", testRange.Start, testRange.End)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].Close != 468 {
		t.Errorf("stored SPY bars = %+v", got)
	}

	// Same request again is a no-op.
	sum, err = g.Run(context.Background(), []string{"SPY", "QQQ", "NOPE"}, testRange)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if sum.Skipped != 3 || sum.Hits != 0 {
		t.Errorf("second summary = %+v, want all skipped", sum)
	}
	if n := f.requested()["SPY"]; n != 1 {
		t.Errorf("SPY requested %d times, want 1", n)
	}
}

func TestGathererSkipsTriedEmpty(t *testing.T) {
	dir := t.TempDir()
	pt, err := newProgressTracker(dir + "/fake")
	if err != nil {
		t.Fatal(err)
	}
	if err := pt.MarkEmpty([]string{"GONE"}); err != nil {
		t.Fatal(err)
	}
	pt.Close()

	f := &fakeFetcher{data: map[string][]domain.Bar{"SPY": testBars("SPY", 1)}}
	g := New(f, store.NewParquetStore(dir), Options{StateDir: dir, RetryDelay: time.Millisecond})

	sum, err := g.Run(context.Background(), []string{"SPY", "GONE"}, testRange)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Skipped != 1 || sum.Hits != 1 {
		t.Errorf("summary = %+v, want 1 skipped and 1 hit", sum)
	}
	if n := f.requested()["GONE"]; n != 0 {
		t.Errorf("GONE requested %d times, want 0", n)
	}
}

func TestGathererRetries(t *testing.T) {
	f := &fakeFetcher{
		data:     map[string][]domain.Bar{"SPY": testBars("SPY", 1, 2)},
		failures: 2,
	}
	g := New(f, store.NewParquetStore(t.TempDir()), Options{MaxAttempts: 3, RetryDelay: time.Millisecond})

	sum, err := g.Run(context.Background(), []string{"SPY"}, testRange)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Bars != 2 {
		t.Errorf("Bars = %d, want 2", sum.Bars)
	}
	if len(f.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(f.calls))
	}
}

func TestGathererFailureNotCompleted(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{fatal: errors.New("unauthorized")}
	g := New(f, store.NewParquetStore(dir), Options{StateDir: dir, RetryDelay: time.Millisecond})

	sum, err := g.Run(context.Background(), []string{"SPY", "QQQ"}, testRange)
	if err == nil {
		t.Fatal("Run returned nil error")
	}
	if sum.Failed != 2 {
		t.Errorf("Failed = %d, want 2", sum.Failed)
	}
	if len(f.calls) != 1 {
		t.Errorf("permanent error retried: calls = %d", len(f.calls))
	}

	pt, err := newProgressTracker(dir + "/fake")
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()
	if pt.LastCompleted() != "" {
		t.Errorf("LastCompleted = %q, want empty", pt.LastCompleted())
	}
}

func TestGathererBadInput(t *testing.T) {
	g := New(&fakeFetcher{}, store.NewParquetStore(t.TempDir()), Options{})

	if _, err := g.Run(context.Background(), []string{" "}, testRange); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty symbols: err = %v, want ErrInvalidInput", err)
	}
	bad := DateRange{Start: testRange.End, End: testRange.Start}
	if _, err := g.Run(context.Background(), []string{"SPY"}, bad); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("reversed range: err = %v, want ErrInvalidInput", err)
	}
}

func TestGathererWithNilLogger(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{data: map[string][]domain.Bar{"SPY": testBars("SPY", 470)}}
	g := New(f, store.NewParquetStore(dir), Options{StateDir: dir, RetryDelay: time.Millisecond}).
		WithLogger(nil)
	if g.log == nil {
		t.Fatal("WithLogger(nil) cleared the logger")
	}

	sum, err := g.Run(context.Background(), []string{"SPY"}, testRange)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Hits != 1 {
		t.Errorf("summary = %+v, want 1 hit", sum)
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{"spy", " QQQ ", "", "SPY", "iwm"})
	want := []string{"IWM", "QQQ", "SPY"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeSymbols = %v, want %v", got, want)
	}
}

func TestCompletionKeyDependsOnSymbols(t *testing.T) {
	a := completionKey("yahoo", []string{"QQQ", "SPY"}, testRange)
	b := completionKey("yahoo", []string{"SPY"}, testRange)
	if a == b {
		t.Errorf("keys for different symbol sets collide: %q", a)
	}
	if a != completionKey("yahoo", []string{"QQQ", "SPY"}, testRange) {
		t.Error("completionKey is not deterministic")
	}
}

func TestBarsFromAlpaca(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	in := map[string][]marketdata.Bar{
		"spy": {
			{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, ny), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
			{Timestamp: time.Date(2024, 2, 5, 0, 0, 0, 0, ny), Close: 9, Volume: 1},
		},
	}
	got := barsFromAlpaca(in, testRange)
	if len(got) != 1 {
		t.Fatalf("got %d bars, want 1 (out-of-range bar dropped)", len(got))
	}
	want := domain.Bar{
		Symbol:    "SPY",
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:      1, High: 2, Low: 0.5, Close: 1.5,
		Volume: 100,
	}
	if got[0] != want {
		t.Errorf("bar = %+v, want %+v", got[0], want)
	}
}

func TestBarsFromQuote(t *testing.T) {
	q := quote.Quote{
		Symbol: "IWM",
		Date: []time.Time{
			time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
			time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC),
			time.Date(2024, 1, 4, 14, 30, 0, 0, time.UTC),
		},
		Open:   []float64{200, 0, 201},
		High:   []float64{202, 0, 203},
		Low:    []float64{199, 0, 200},
		Close:  []float64{201, math.NaN(), 202},
		Volume: []float64{5e6, 0, 6e6},
	}
	got := barsFromQuote("iwm", q, testRange)
	if len(got) != 2 {
		t.Fatalf("got %d bars, want 2", len(got))
	}
	if got[1].Timestamp != time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC) || got[1].Close != 202 || got[1].Volume != 6000000 {
		t.Errorf("second bar = %+v", got[1])
	}
	if got[0].Symbol != "IWM" {
		t.Errorf("Symbol = %q, want IWM", got[0].Symbol)
	}
}

func TestYahooFetcherSkipsFailedSymbols(t *testing.T) {
	f := NewYahooFetcher(true)
	var seen []string
	f.load = func(symbol, start, end string, adjusted bool) (quote.Quote, error) {
		seen = append(seen, symbol+" "+start+" "+end)
		if !adjusted {
			t.Error("adjusted flag not passed through")
		}
		if symbol == "BAD" {
			return quote.Quote{}, errors.New("404")
		}
		return quote.Quote{
			Symbol: symbol,
			Date:   []time.Time{time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)},
			Open:   []float64{1}, High: []float64{1}, Low: []float64{1},
			Close: []float64{1}, Volume: []float64{1},
		}, nil
	}

	bars, err := f.FetchDaily(context.Background(), []string{"BAD", "SPY"}, testRange)
	if err != nil {
		t.Fatalf("FetchDaily: %v", err)
	}
	if len(bars) != 1 || bars[0].Symbol != "SPY" {
		t.Errorf("bars = %+v, want one SPY bar", bars)
	}
	if seen[1] != "SPY 2024-01-01 2024-02-01" {
		t.Errorf("request = %q, want end advanced by one day", seen[1])
	}
}
