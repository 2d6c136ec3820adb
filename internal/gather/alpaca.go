package gather

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantgym/internal/domain"
)

var _ Fetcher = (*AlpacaFetcher)(nil)

// AlpacaFetcher fetches daily bars from the Alpaca market-data API, many
// symbols per request.
type AlpacaFetcher struct {
	client   *marketdata.Client
	feed     string
	adjusted bool
}

// NewAlpacaFetcher creates an AlpacaFetcher. An empty dataURL uses the
// client's default endpoint; feed is "iex", "sip" or "otc".
func NewAlpacaFetcher(apiKey, apiSecret, dataURL, feed string, adjusted bool) *AlpacaFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaFetcher{
		client:   marketdata.NewClient(opts),
		feed:     feed,
		adjusted: adjusted,
	}
}

// Name returns "alpaca".
func (f *AlpacaFetcher) Name() string { return "alpaca" }

// FetchDaily fetches daily bars for multiple symbols in a single API call.
func (f *AlpacaFetcher) FetchDaily(ctx context.Context, symbols []string, r DateRange) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     r.Start,
		End:       r.End.AddDate(0, 0, 1),
	}
	switch strings.ToLower(f.feed) {
	case "sip":
		req.Feed = "sip"
	case "otc":
		req.Feed = "otc"
	default:
		req.Feed = "iex"
	}
	if f.adjusted {
		req.Adjustment = "all"
	}

	multiBars, err := f.client.GetMultiBars(symbols, req)
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}
	return barsFromAlpaca(multiBars, r), nil
}

// barsFromAlpaca converts API bars, keeping those whose date falls in r.
func barsFromAlpaca(multiBars map[string][]marketdata.Bar, r DateRange) []domain.Bar {
	start, end := dayUTC(r.Start), dayUTC(r.End)
	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			ts := dayUTC(ab.Timestamp)
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: ts,
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
			})
		}
	}
	return bars
}
