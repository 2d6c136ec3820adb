package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quantgym/internal/config"
	"quantgym/internal/report"
	"quantgym/internal/store"
	"quantgym/internal/strategy"
	"quantgym/internal/strategy/builtins"
	"quantgym/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quantgym <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run          Backtest one strategy: run -strategy sma-cross -symbols SPY\n")
		fmt.Fprintf(os.Stderr, "  compare      Backtest several runs side by side: compare sma-cross:SPY pairs-zscore:KO,PEP\n")
		fmt.Fprintf(os.Stderr, "  strategies   List available strategies\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("quantgym %s\n", version)

	case "strategies":
		reg := newRegistry(loadConfig())
		for _, name := range reg.List() {
			s, _ := reg.Get(name)
			kind := "single"
			if _, ok := s.(strategy.PairGenerator); ok {
				kind = "pairs"
			}
			fmt.Printf("%-14s %s\n", name, kind)
		}

	case "run":
		runCmd(os.Args[2:])

	case "compare":
		compareCmd(os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

func runCmd(args []string) {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	name := flags.String("strategy", "sma-cross", "strategy name")
	symbols := flags.String("symbols", "SPY", "symbol, or two comma-separated symbols for a pairs strategy")
	start := flags.String("start", "", "start date (defaults to backtest.start_date)")
	end := flags.String("end", "", "end date (defaults to backtest.end_date or today)")
	out := flags.String("out", "", "write the equity curve to a .csv or .json file")
	normalize := flags.Bool("normalize", false, "divide the exported curve by its first value")
	flags.Parse(args)

	cfg := loadConfig()
	req := strategy.Request{Strategy: *name, Symbols: splitSymbols(*symbols)}
	req.Start, req.End = dateRange(cfg, *start, *end)

	execute(cfg, []strategy.Request{req}, *out, *normalize)
}

func compareCmd(args []string) {
	flags := flag.NewFlagSet("compare", flag.ExitOnError)
	start := flags.String("start", "", "start date (defaults to backtest.start_date)")
	end := flags.String("end", "", "end date (defaults to backtest.end_date or today)")
	out := flags.String("out", "", "write the equity curves to a .csv or .json file")
	normalize := flags.Bool("normalize", true, "divide the exported curves by their first value")
	flags.Parse(args)

	if flags.NArg() == 0 {
		log.Fatalf("compare: expected runs of the form strategy:SYM[,SYM]")
	}

	cfg := loadConfig()
	from, to := dateRange(cfg, *start, *end)

	var reqs []strategy.Request
	for _, arg := range flags.Args() {
		name, syms, ok := strings.Cut(arg, ":")
		if !ok || name == "" || syms == "" {
			log.Fatalf("compare: bad run %q, want strategy:SYM[,SYM]", arg)
		}
		reqs = append(reqs, strategy.Request{
			Strategy: name,
			Symbols:  splitSymbols(syms),
			Start:    from,
			End:      to,
		})
	}

	execute(cfg, reqs, *out, *normalize)
}

func execute(cfg *config.Config, reqs []strategy.Request, out string, normalize bool) {
	barStore, err := store.Open(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer barStore.Close()

	bt := strategy.NewBacktester(barStore, newRegistry(cfg), cfg.Backtest.EngineConfig()).
		WithParallelism(cfg.Backtest.Parallelism)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	started := time.Now()
	results, err := bt.Compare(ctx, reqs)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
	slog.Debug("backtests finished", "runs", len(results), "elapsed", time.Since(started).Round(time.Millisecond))

	flat := make([]strategy.BacktestResult, len(results))
	for i, r := range results {
		flat[i] = *r
	}
	fmt.Print(report.Table(flat))

	if out != "" {
		if err := report.WriteFile(out, flat, normalize); err != nil {
			log.Fatalf("failed to write report: %v", err)
		}
		slog.Info("report written", "path", out)
	}
}

// loadConfig reads the config file and sets up logging. A missing file at
// the default location falls back to defaults and environment variables.
func loadConfig() *config.Config {
	path := config.Path()
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultPath {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	return cfg
}

// newRegistry registers the builtin strategies with the configured
// parameters.
func newRegistry(cfg *config.Config) *strategy.Registry {
	st := cfg.Strategies
	reg := strategy.NewRegistry()
	reg.Register(builtins.NewSMACross(st.SMACross.ShortWindow, st.SMACross.LongWindow))
	reg.Register(builtins.NewRSIMeanRev(st.RSIMeanRev.Period, st.RSIMeanRev.Low, st.RSIMeanRev.High))
	reg.Register(builtins.NewPairsZScore(st.PairsZScore.Window, st.PairsZScore.EntryZ, st.PairsZScore.ExitZ))
	return reg
}

// dateRange resolves flag dates, falling back to the configured backtest
// range.
func dateRange(cfg *config.Config, start, end string) (time.Time, time.Time) {
	b := cfg.Backtest
	if start != "" {
		b.StartDate = start
	}
	if end != "" {
		b.EndDate = end
	}
	from, to, err := b.Range()
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}
	return from, to
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
