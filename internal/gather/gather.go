// Package gather downloads daily bars from a market-data source into a
// BarStore. Downloads are batched, rate limited, retried and resumable.
package gather

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"quantgym/internal/domain"
	"quantgym/internal/store"
	"quantgym/internal/util"
)

// Fetcher downloads daily bars for a batch of symbols.
type Fetcher interface {
	// Name returns the source identifier, e.g. "alpaca".
	Name() string
	// FetchDaily returns every bar for symbols within r. Symbols with no data
	// are simply absent from the result.
	FetchDaily(ctx context.Context, symbols []string, r DateRange) ([]domain.Bar, error)
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

// Options tunes a Gatherer. Zero values pick defaults.
type Options struct {
	BatchSize       int
	MaxWorkers      int
	RateLimitPerMin int // <= 0 disables limiting
	MaxAttempts     int
	RetryDelay      time.Duration
	StateDir        string // empty disables resume tracking
	Force           bool   // ignore a previous completed run
}

// Summary reports what a Run did.
type Summary struct {
	Symbols int
	Skipped int
	Hits    int64
	Empty   int64
	Failed  int64
	Bars    int64
}

// Gatherer pulls bars from a Fetcher and writes them to a store.
type Gatherer struct {
	fetcher Fetcher
	store   store.BarStore
	limiter *util.RateLimiter
	opts    Options
	log     *slog.Logger
}

// New creates a Gatherer.
func New(f Fetcher, s store.BarStore, opts Options) *Gatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Gatherer{
		fetcher: f,
		store:   s,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		opts:    opts,
		log:     slog.Default().With("gatherer", f.Name()),
	}
}

// WithLogger replaces the logger. A nil logger is ignored.
func (g *Gatherer) WithLogger(l *slog.Logger) *Gatherer {
	if l != nil {
		g.log = l.With("gatherer", g.fetcher.Name())
	}
	return g
}

// Name returns the gatherer identifier.
func (g *Gatherer) Name() string { return "daily-" + g.fetcher.Name() }

// Run fetches daily bars for symbols within r. A run that already completed
// for the same source, symbols and end date is skipped unless Force is set.
// Symbols that returned nothing earlier in an unfinished run are not
// retried.
func (g *Gatherer) Run(ctx context.Context, symbols []string, r DateRange) (Summary, error) {
	symbols = NormalizeSymbols(symbols)
	sum := Summary{Symbols: len(symbols)}
	if len(symbols) == 0 {
		return sum, domain.Invalid("symbols", -1, "no symbols to gather")
	}
	if r.End.Before(r.Start) {
		return sum, domain.Invalid("date_range", -1, "end %s before start %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}

	// 1. Set up progress tracker.
	var tracker *progressTracker
	key := completionKey(g.fetcher.Name(), symbols, r)
	if g.opts.StateDir != "" {
		var err error
		tracker, err = newProgressTracker(filepath.Join(g.opts.StateDir, g.fetcher.Name()))
		if err != nil {
			return sum, fmt.Errorf("creating progress tracker: %w", err)
		}
		defer tracker.Close()

		if !g.opts.Force && tracker.IsCompleted(key) {
			g.log.Info("already completed", "range", r.String())
			sum.Skipped = len(symbols)
			return sum, nil
		}
		if last := tracker.LastCompleted(); (last != "" && last != key) || g.opts.Force {
			// A different request finished last; its empty set is stale.
			if err := tracker.Reset(); err != nil {
				return sum, fmt.Errorf("resetting tracker: %w", err)
			}
		}
	}

	// 2. Filter symbols already known to be empty.
	var remaining []string
	for _, sym := range symbols {
		if tracker != nil && tracker.IsTriedEmpty(sym) {
			sum.Skipped++
			continue
		}
		remaining = append(remaining, sym)
	}

	var batches [][]string
	for i := 0; i < len(remaining); i += g.opts.BatchSize {
		end := min(i+g.opts.BatchSize, len(remaining))
		batches = append(batches, remaining[i:end])
	}

	g.log.Info("starting gather",
		"range", r.String(),
		"total", len(symbols),
		"remaining", len(remaining),
		"batches", len(batches),
	)

	// 3. Feed batches to workers.
	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalHits atomic.Int64
		totalMiss atomic.Int64
		totalFail atomic.Int64
		totalBars atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.opts.MaxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}

				batch := batches[batchIdx]
				bars, err := g.fetchBatch(ctx, batch, r)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					g.log.Error("batch fetch failed",
						"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
						"err", err,
					)
					totalFail.Add(int64(len(batch)))
					continue
				}

				hitSymbols := make(map[string]struct{})
				for _, b := range bars {
					hitSymbols[b.Symbol] = struct{}{}
				}
				var emptySymbols []string
				for _, sym := range batch {
					if _, hit := hitSymbols[sym]; !hit {
						emptySymbols = append(emptySymbols, sym)
					}
				}

				if len(bars) > 0 {
					if err := g.store.WriteBars(ctx, bars); err != nil {
						g.log.Error("writing bars failed", "err", err)
						totalFail.Add(int64(len(batch)))
						continue
					}
				}
				if tracker != nil && len(emptySymbols) > 0 {
					if err := tracker.MarkEmpty(emptySymbols); err != nil {
						g.log.Error("marking empty failed", "err", err)
					}
				}

				totalHits.Add(int64(len(hitSymbols)))
				totalMiss.Add(int64(len(emptySymbols)))
				totalBars.Add(int64(len(bars)))

				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
					"hits", len(hitSymbols),
					"empty", len(emptySymbols),
					"bars", len(bars),
					"elapsed", time.Since(runStart).Round(time.Millisecond),
				)
			}
		}()
	}
	wg.Wait()

	sum.Hits = totalHits.Load()
	sum.Empty = totalMiss.Load()
	sum.Failed = totalFail.Load()
	sum.Bars = totalBars.Load()

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%d of %d symbols failed", sum.Failed, len(remaining))
	}

	if tracker != nil {
		if err := tracker.MarkCompleted(key); err != nil {
			return sum, fmt.Errorf("marking completed: %w", err)
		}
	}

	g.log.Info("complete",
		"hits", sum.Hits,
		"empty", sum.Empty,
		"bars", sum.Bars,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return sum, nil
}

// fetchBatch waits for the rate limiter before every attempt.
func (g *Gatherer) fetchBatch(ctx context.Context, batch []string, r DateRange) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.opts.MaxAttempts, g.opts.RetryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		bars, err = g.fetcher.FetchDaily(ctx, batch, r)
		return err
	})
	return bars, err
}

// NormalizeSymbols upper-cases, trims, de-duplicates and sorts symbols.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// completionKey identifies a request in the .last-completed file.
func completionKey(source string, symbols []string, r DateRange) string {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(symbols, ",")))
	return fmt.Sprintf("%s %s %s %08x", source,
		r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly), h.Sum32())
}

// dayUTC truncates t to its UTC calendar date.
func dayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
