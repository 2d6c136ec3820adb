package gather

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/markcheno/go-quote"

	"quantgym/internal/domain"
)

var _ Fetcher = (*YahooFetcher)(nil)

type quoteLoader func(symbol, start, end string, adjusted bool) (quote.Quote, error)

func loadYahoo(symbol, start, end string, adjusted bool) (quote.Quote, error) {
	return quote.NewQuoteFromYahoo(symbol, start, end, quote.Daily, adjusted)
}

// YahooFetcher fetches daily bars from Yahoo Finance, one symbol per request.
// It needs no credentials.
type YahooFetcher struct {
	load     quoteLoader
	adjusted bool
	log      *slog.Logger
}

// NewYahooFetcher creates a YahooFetcher. adjusted requests split and
// dividend adjusted prices.
func NewYahooFetcher(adjusted bool) *YahooFetcher {
	return &YahooFetcher{
		load:     loadYahoo,
		adjusted: adjusted,
		log:      slog.Default().With("fetcher", "yahoo"),
	}
}

// Name returns "yahoo".
func (f *YahooFetcher) Name() string { return "yahoo" }

// FetchDaily loads each symbol in turn. A symbol Yahoo rejects is logged and
// treated as empty so that it does not fail the whole batch.
func (f *YahooFetcher) FetchDaily(ctx context.Context, symbols []string, r DateRange) ([]domain.Bar, error) {
	start := r.Start.Format(time.DateOnly)
	end := r.End.AddDate(0, 0, 1).Format(time.DateOnly)

	var bars []domain.Bar
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q, err := f.load(sym, start, end, f.adjusted)
		if err != nil {
			f.log.Warn("quote failed", "symbol", sym, "err", err)
			continue
		}
		bars = append(bars, barsFromQuote(sym, q, r)...)
	}
	return bars, nil
}

// barsFromQuote converts a quote, dropping rows with no usable close and rows
// outside r.
func barsFromQuote(symbol string, q quote.Quote, r DateRange) []domain.Bar {
	start, end := dayUTC(r.Start), dayUTC(r.End)
	n := min(len(q.Date), len(q.Open), len(q.High), len(q.Low), len(q.Close), len(q.Volume))

	bars := make([]domain.Bar, 0, n)
	for i := 0; i < n; i++ {
		c := q.Close[i]
		if !(c > 0) || math.IsInf(c, 0) {
			continue
		}
		ts := dayUTC(q.Date[i])
		if ts.Before(start) || ts.After(end) {
			continue
		}
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ts,
			Open:      q.Open[i],
			High:      q.High[i],
			Low:       q.Low[i],
			Close:     c,
			Volume:    int64(q.Volume[i]),
		})
	}
	return bars
}
