package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration: YAML file for the stable knobs,
// environment (.env) for credentials and the trading thresholds that get
// tuned per deployment.
type Config struct {
	Trading TradingConfig `yaml:"trading"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`

	// From environment only, never YAML; credentials stay out of files
	// that get committed.
	PrivateKey    string `yaml:"-"`
	FunderAddress string `yaml:"-"`
}

// TradingConfig controls strategy and executor behavior.
type TradingConfig struct {
	SeriesSlug         string  `yaml:"series_slug"`
	PaperTrading       bool    `yaml:"paper_trading"`
	ProfitTargetCents  float64 `yaml:"profit_target_cents"`
	MaxBuyPriceCents   float64 `yaml:"max_buy_price_cents"`
	MaxPositionSize    float64 `yaml:"max_position_size"`
	SellBeforeStartMs  int64   `yaml:"sell_before_start_ms"`
	MinTimeToTradeMs   int64   `yaml:"min_time_to_trade_ms"`
	TickSeconds        int     `yaml:"tick_seconds"`
	ReconcileEachTicks int     `yaml:"reconcile_each_ticks"`
}

// APIConfig holds the service base URLs.
type APIConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	GammaBase  string `yaml:"gamma_base"`
	PolygonRPC string `yaml:"polygon_rpc"`
}

// StorageConfig controls trade journal persistence.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// values override YAML for the keys they cover.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // silent when no .env exists

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

// SellBeforeStart returns the forced-exit window as a duration.
func (c *Config) SellBeforeStart() time.Duration {
	return time.Duration(c.Trading.SellBeforeStartMs) * time.Millisecond
}

// MinTimeToTrade returns the minimum entry lead time as a duration.
func (c *Config) MinTimeToTrade() time.Duration {
	return time.Duration(c.Trading.MinTimeToTradeMs) * time.Millisecond
}

// TickInterval returns the evaluation cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Trading.TickSeconds) * time.Second
}

// Validate checks that live trading has the credentials it needs.
func (c *Config) Validate() error {
	if !c.Trading.PaperTrading && c.PrivateKey == "" {
		return fmt.Errorf("config: PRIVATE_KEY is required for live trading")
	}
	return nil
}

// applyEnvOverrides reads the recognized environment keys.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAPER_TRADING"); v != "" {
		cfg.Trading.PaperTrading, _ = strconv.ParseBool(v)
	}
	cfg.PrivateKey = os.Getenv("PRIVATE_KEY")
	cfg.FunderAddress = os.Getenv("FUNDER_ADDRESS")

	if v := envFloat("PROFIT_TARGET"); v > 0 {
		cfg.Trading.ProfitTargetCents = v
	}
	if v := envFloat("MAX_BUY_PRICE"); v > 0 {
		cfg.Trading.MaxBuyPriceCents = v
	}
	if v := envFloat("MAX_POSITION_SIZE"); v > 0 {
		cfg.Trading.MaxPositionSize = v
	}
	if v := envInt("SELL_BEFORE_START_MS"); v > 0 {
		cfg.Trading.SellBeforeStartMs = v
	}
	if v := envInt("MIN_TIME_TO_TRADE_MS"); v > 0 {
		cfg.Trading.MinTimeToTradeMs = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills required values with sensible ones.
func setDefaults(cfg *Config) {
	if cfg.Trading.SeriesSlug == "" {
		cfg.Trading.SeriesSlug = "bitcoin-up-or-down"
	}
	if cfg.Trading.ProfitTargetCents <= 0 {
		cfg.Trading.ProfitTargetCents = 2
	}
	if cfg.Trading.MaxBuyPriceCents <= 0 {
		cfg.Trading.MaxBuyPriceCents = 55
	}
	if cfg.Trading.MaxPositionSize <= 0 {
		cfg.Trading.MaxPositionSize = 10
	}
	if cfg.Trading.SellBeforeStartMs <= 0 {
		cfg.Trading.SellBeforeStartMs = 60_000
	}
	if cfg.Trading.MinTimeToTradeMs <= 0 {
		cfg.Trading.MinTimeToTradeMs = 30_000
	}
	if cfg.Trading.TickSeconds <= 0 {
		cfg.Trading.TickSeconds = 5
	}
	if cfg.Trading.ReconcileEachTicks <= 0 {
		cfg.Trading.ReconcileEachTicks = 12
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.PolygonRPC == "" {
		cfg.API.PolygonRPC = "https://polygon-rpc.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "upbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func envInt(key string) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
