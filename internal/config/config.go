package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"

	"quantgym/internal/domain"
	"quantgym/internal/engine"
)

// DefaultPath is used when QUANTGYM_CONFIG is unset.
const DefaultPath = "config/quantgym.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantgym.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Gather     GatherConfig     `yaml:"gather"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Strategies StrategiesConfig `yaml:"strategies"`
}

// Storage selects the bar store backend and its location.
type Storage struct {
	Backend    string `yaml:"backend"` // parquet or sqlite
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig controls bar downloads.
type GatherConfig struct {
	Source          string   `yaml:"source"` // alpaca or yahoo
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxAttempts     int      `yaml:"max_attempts"`
	Adjusted        bool     `yaml:"adjusted"`
}

// BacktestConfig holds the simulator parameters and the default date range.
type BacktestConfig struct {
	InitialCash     float64 `yaml:"initial_cash"`
	CommissionRate  float64 `yaml:"commission_rate"`
	RiskFraction    float64 `yaml:"risk_fraction"`
	CommissionModel string  `yaml:"commission_model"`
	StartDate       string  `yaml:"start_date"`
	EndDate         string  `yaml:"end_date"`
	Parallelism     int     `yaml:"parallelism"`
}

// StrategiesConfig holds generator parameters.
type StrategiesConfig struct {
	SMACross    SMACrossConfig    `yaml:"sma_cross"`
	RSIMeanRev  RSIMeanRevConfig  `yaml:"rsi_meanrev"`
	PairsZScore PairsZScoreConfig `yaml:"pairs_zscore"`
}

type SMACrossConfig struct {
	ShortWindow int `yaml:"short_window"`
	LongWindow  int `yaml:"long_window"`
}

type RSIMeanRevConfig struct {
	Period int     `yaml:"period"`
	Low    float64 `yaml:"low"`
	High   float64 `yaml:"high"`
}

type PairsZScoreConfig struct {
	Window int     `yaml:"window"`
	EntryZ float64 `yaml:"entry_z"`
	ExitZ  float64 `yaml:"exit_z"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config file location, honouring QUANTGYM_CONFIG.
func Path() string {
	if v := os.Getenv("QUANTGYM_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a configuration built from defaults and environment
// variables alone.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

// applyDefaults fills every unset field.
func applyDefaults(cfg *Config) {
	s := &cfg.Storage
	if s.Backend == "" {
		s.Backend = "parquet"
	}
	if s.DataDir == "" {
		s.DataDir = "data"
	}
	if s.SQLitePath == "" {
		s.SQLitePath = "data/quantgym.db"
	}

	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	g := &cfg.Gather
	if g.Source == "" {
		g.Source = "yahoo"
	}
	if g.StartDate == "" {
		g.StartDate = "2020-01-01"
	}
	if g.BatchSize == 0 {
		g.BatchSize = 100
	}
	if g.RateLimitPerMin == 0 {
		g.RateLimitPerMin = 60
	}
	if g.MaxAttempts == 0 {
		g.MaxAttempts = 3
	}

	b := &cfg.Backtest
	if b.InitialCash == 0 {
		b.InitialCash = 100000
	}
	if b.RiskFraction == 0 {
		b.RiskFraction = engine.DefaultRiskFraction
	}
	if b.CommissionModel == "" {
		b.CommissionModel = string(engine.CommissionPerUnit)
	}
	if b.StartDate == "" {
		b.StartDate = "2020-01-01"
	}
	if b.Parallelism == 0 {
		b.Parallelism = 4
	}

	st := &cfg.Strategies
	if st.SMACross.ShortWindow == 0 {
		st.SMACross.ShortWindow = 20
	}
	if st.SMACross.LongWindow == 0 {
		st.SMACross.LongWindow = 50
	}
	if st.RSIMeanRev.Period == 0 {
		st.RSIMeanRev.Period = 14
	}
	if st.RSIMeanRev.Low == 0 && st.RSIMeanRev.High == 0 {
		st.RSIMeanRev.Low = 30
		st.RSIMeanRev.High = 70
	}
	if st.PairsZScore.Window == 0 {
		st.PairsZScore.Window = 20
	}
	if st.PairsZScore.EntryZ == 0 {
		st.PairsZScore.EntryZ = 2.0
	}
	if st.PairsZScore.ExitZ == 0 {
		st.PairsZScore.ExitZ = 0.5
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("QUANTGYM_STORE"); v != "" {
		cfg.Storage.Backend = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Standard Alpaca env vars win over everything else.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Derived values
// ---------------------------------------------------------------------------

// EngineConfig returns the simulator parameters.
func (b BacktestConfig) EngineConfig() engine.Config {
	return engine.Config{
		InitialCash:     b.InitialCash,
		CommissionRate:  b.CommissionRate,
		RiskFraction:    b.RiskFraction,
		CommissionModel: engine.CommissionModel(b.CommissionModel),
	}
}

// Range parses the backtest dates. An empty end date means now.
func (b BacktestConfig) Range() (time.Time, time.Time, error) {
	return parseRange(b.StartDate, b.EndDate)
}

// Range parses the gather dates. An empty end date means now.
func (g GatherConfig) Range() (time.Time, time.Time, error) {
	return parseRange(g.StartDate, g.EndDate)
}

// ParseDate accepts any layout dateparse understands and interprets it in
// UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := time.Now().UTC()
	if endStr != "" {
		if end, err = ParseDate(endStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, domain.Invalid("date_range", -1, "end %s before start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

// Validate rejects out-of-range run parameters.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "parquet", "sqlite":
	default:
		return domain.Invalid("storage.backend", -1, "unknown backend %q", c.Storage.Backend)
	}
	switch c.Gather.Source {
	case "alpaca", "yahoo":
	default:
		return domain.Invalid("gather.source", -1, "unknown source %q", c.Gather.Source)
	}
	if err := c.Backtest.EngineConfig().Validate(); err != nil {
		return err
	}
	if _, _, err := c.Backtest.Range(); err != nil {
		return err
	}

	st := c.Strategies
	if st.SMACross.ShortWindow < 1 || st.SMACross.LongWindow < 1 {
		return domain.Invalid("strategies.sma_cross", -1, "windows must be >= 1")
	}
	if st.RSIMeanRev.Period < 1 {
		return domain.Invalid("strategies.rsi_meanrev.period", -1, "must be >= 1")
	}
	if !(st.RSIMeanRev.Low < st.RSIMeanRev.High) {
		return domain.Invalid("strategies.rsi_meanrev", -1, "low %v must be below high %v", st.RSIMeanRev.Low, st.RSIMeanRev.High)
	}
	if st.PairsZScore.Window < 1 {
		return domain.Invalid("strategies.pairs_zscore.window", -1, "must be >= 1")
	}
	if !(st.PairsZScore.EntryZ > 0) || st.PairsZScore.ExitZ < 0 {
		return domain.Invalid("strategies.pairs_zscore", -1, "entry_z must be > 0 and exit_z >= 0")
	}
	return nil
}
