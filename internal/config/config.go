// Package config loads the backtest harness configuration from YAML, a
// .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"xmasladder/internal/domain"
	"xmasladder/internal/series"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the backtest harness.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Logging   Logging   `yaml:"logging"`
	Strategy  Strategy  `yaml:"strategy"`
	Execution Execution `yaml:"execution"`
	Risk      Risk      `yaml:"risk"`
	Backtest  Backtest  `yaml:"backtest"`
}

// Storage selects and locates the market-data cache.
type Storage struct {
	Backend    string `yaml:"backend"` // parquet, sqlite or none
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Addr returns host:grpc_port.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Strategy configures the Christmas ladder.
type Strategy struct {
	Year              int    `yaml:"year"`
	Symbol            string `yaml:"symbol"`
	BuyDays           int    `yaml:"buy_days"`
	SellDays          int    `yaml:"sell_days"`
	SellExecutionTime string `yaml:"sell_execution_time"`
}

// Execution configures the fill simulator.
type Execution struct {
	SlippageBps       float64 `yaml:"slippage_bps"`
	MinLiquidityCheck bool    `yaml:"min_liquidity_check"`
	MaxVolumePct      float64 `yaml:"max_volume_pct"`
	RepriceTime       string  `yaml:"reprice_time"`
	PreserveTimestamp bool    `yaml:"preserve_timestamp"`
	SessionOpen       string  `yaml:"session_open"`
	SessionClose      string  `yaml:"session_close"`
}

// Risk holds the sizing and portfolio limits.
type Risk struct {
	MaxPositionPct       float64 `yaml:"max_position_pct"`
	MaxSinglePositionPct float64 `yaml:"max_single_position_pct"`
	MaxKellyFraction     float64 `yaml:"max_kelly_fraction"`
	MarginMultiplier     float64 `yaml:"margin_multiplier"`
}

// Backtest configures a run's capital and data source.
type Backtest struct {
	InitialCash float64 `yaml:"initial_cash"`
	Interval    string  `yaml:"interval"`
	DataFile    string  `yaml:"data_file"` // CSV bars instead of Alpaca when set
	Start       string  `yaml:"start"`     // YYYY-MM-DD, default Nov 15 of year
	End         string  `yaml:"end"`       // YYYY-MM-DD, default Jan 15 of year+1
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Backend:    "parquet",
			DataDir:    "data",
			SQLitePath: "data/xmasladder.db",
		},
		Server: Server{
			Host:     "0.0.0.0",
			GRPCPort: 50061,
		},
		Alpaca: Alpaca{
			DataURL:         "https://data.alpaca.markets",
			Feed:            "sip",
			RateLimitPerMin: 200,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Strategy: Strategy{
			Year:              time.Now().Year() - 1,
			Symbol:            "SPY",
			BuyDays:           5,
			SellDays:          10,
			SellExecutionTime: "10:30",
		},
		Execution: Execution{
			SlippageBps:       1.0,
			MinLiquidityCheck: true,
			MaxVolumePct:      0.01,
			RepriceTime:       series.DefaultSessionOpen,
			SessionOpen:       series.DefaultSessionOpen,
			SessionClose:      series.DefaultSessionClose,
		},
		Risk: Risk{
			MaxPositionPct:       1.0,
			MaxSinglePositionPct: 1.0,
			MaxKellyFraction:     0.25,
			MarginMultiplier:     1.0,
		},
		Backtest: Backtest{
			InitialCash: 100000,
			Interval:    "1m",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load starts from Default, overlays the YAML file at path (skipped when
// path is empty) and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// replacing variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("XMAS_SYMBOL"); v != "" {
		cfg.Strategy.Symbol = v
	}

	if v := os.Getenv("XMAS_YEAR"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: XMAS_YEAR=%q is not a year", domain.ErrInput, v)
		}
		cfg.Strategy.Year = year
	}

	// Standard Alpaca env vars (APCA_*) take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports malformed settings as domain.ErrInput.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "parquet", "sqlite", "none":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", domain.ErrInput, c.Storage.Backend)
	}
	if c.Strategy.BuyDays < 1 || c.Strategy.SellDays < 1 {
		return fmt.Errorf("%w: buy_days and sell_days must be at least 1, got %d and %d",
			domain.ErrInput, c.Strategy.BuyDays, c.Strategy.SellDays)
	}
	for name, clock := range map[string]string{
		"strategy.sell_execution_time": c.Strategy.SellExecutionTime,
		"execution.reprice_time":       c.Execution.RepriceTime,
		"execution.session_open":       c.Execution.SessionOpen,
		"execution.session_close":      c.Execution.SessionClose,
	} {
		if _, _, err := series.ParseClock(clock); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Execution.SlippageBps < 0 {
		return fmt.Errorf("%w: slippage_bps %v is negative", domain.ErrInput, c.Execution.SlippageBps)
	}
	if c.Backtest.InitialCash < 0 {
		return fmt.Errorf("%w: initial_cash %v is negative", domain.ErrInput, c.Backtest.InitialCash)
	}
	for name, d := range map[string]string{"backtest.start": c.Backtest.Start, "backtest.end": c.Backtest.End} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("%w: %s %q is not YYYY-MM-DD", domain.ErrInput, name, d)
		}
	}
	return nil
}
