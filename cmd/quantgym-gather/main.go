package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"quantgym/internal/config"
	"quantgym/internal/gather"
	"quantgym/internal/store"
	"quantgym/internal/util"
)

func main() {
	source := flag.String("source", "", "alpaca or yahoo (defaults to gather.source)")
	symbols := flag.String("symbols", "", "comma-separated symbols (defaults to gather.symbols)")
	start := flag.String("start", "", "start date (defaults to gather.start_date)")
	end := flag.String("end", "", "end date (defaults to gather.end_date or today)")
	force := flag.Bool("force", false, "re-download even if the same request already completed")
	logFile := flag.String("log-file", "", "also write logs to this file")
	flag.Parse()

	path := config.Path()
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultPath {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	g := cfg.Gather
	if *source != "" {
		g.Source = *source
	}
	if *symbols != "" {
		g.Symbols = strings.Split(*symbols, ",")
	}
	if *start != "" {
		g.StartDate = *start
	}
	if *end != "" {
		g.EndDate = *end
	}
	cfg.Gather = g
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Dual logger: stdout plus an optional file.
	var w io.Writer = os.Stdout
	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			log.Fatalf("failed to create log file: %v", err)
		}
		defer f.Close()
		w = io.MultiWriter(os.Stdout, f)
	}
	util.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format))

	from, to, err := g.Range()
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}

	var fetcher gather.Fetcher
	switch g.Source {
	case "alpaca":
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			log.Fatalf("alpaca source needs APCA_API_KEY_ID and APCA_API_SECRET_KEY")
		}
		fetcher = gather.NewAlpacaFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, g.Adjusted)
	default:
		fetcher = gather.NewYahooFetcher(g.Adjusted)
	}

	barStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer barStore.Close()

	gatherer := gather.New(fetcher, barStore, gather.Options{
		BatchSize:       g.BatchSize,
		RateLimitPerMin: g.RateLimitPerMin,
		MaxAttempts:     g.MaxAttempts,
		StateDir:        filepath.Join(cfg.Storage.DataDir, ".gather"),
		Force:           *force,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting quantgym-gather",
		"source", fetcher.Name(),
		"store", cfg.Storage.Backend,
		"symbols", len(g.Symbols),
	)
	started := time.Now()
	sum, err := gatherer.Run(ctx, g.Symbols, gather.DateRange{Start: from, End: to})
	if err != nil {
		log.Fatalf("gather failed: %v", err)
	}
	fmt.Printf("%s: %d symbols, %d with data, %d empty, %d skipped, %d bars in %s\n",
		gatherer.Name(), sum.Symbols, sum.Hits, sum.Empty, sum.Skipped, sum.Bars,
		time.Since(started).Round(time.Millisecond))
}
