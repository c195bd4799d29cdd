package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"candleBacktest/internal/adapters/binanceclient"
	"candleBacktest/internal/adapters/logger"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/strategy"
	"candleBacktest/internal/strategy/backtesting"
	"candleBacktest/internal/strategy/indicators"
)

// dateTimeLayout is how START_DATE/START_TIME and END_DATE/END_TIME are joined and parsed.
const dateTimeLayout = "2006-01-02 15:04"

// Cache backends for fetched candle ranges.
const (
	CacheNone   = "none"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	// Market data
	APIKey          string
	SecretKey       string
	BaseURL         string
	RequestTimeout  time.Duration
	MaxFetchRetries int

	// Range
	Asset       string
	Currency    string
	CandleSize  int    // Minutes per candle
	Interval    string // Binance interval derived from CandleSize
	HistorySize int    // Reserved
	Start       time.Time
	End         time.Time

	// Simulation
	Strategy       strategy.Name
	Params         strategy.Config
	InitialBalance float64
	Mode           backtesting.Mode
	FeeMaker       float64 // Percent
	FeeTaker       float64 // Percent
	Slippage       float64 // Percent

	// Candle sources and caches
	CandleCSVPath   string // When set, candles are read from this file instead of Binance
	CacheBackend    string
	CandleCachePath string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisTTL        time.Duration

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // text or json

	// Metrics
	MetricsTextfile string
}

// Symbol is the exchange pair, e.g. BTCUSDC.
func (c *Config) Symbol() string {
	return strings.ToUpper(c.Asset + c.Currency)
}

// StartMillis returns the range start in epoch milliseconds.
func (c *Config) StartMillis() int64 { return c.Start.UnixMilli() }

// EndMillis returns the range end in epoch milliseconds.
func (c *Config) EndMillis() int64 { return c.End.UnixMilli() }

// Backtest builds the simulator configuration.
func (c *Config) Backtest() backtesting.Config {
	return backtesting.Config{
		Strategy:       c.Strategy,
		Params:         c.Params,
		InitialBalance: c.InitialBalance,
		Mode:           c.Mode,
		Symbol:         c.Symbol(),
		Interval:       c.Interval,
		FeeMaker:       c.FeeMaker,
		FeeTaker:       c.FeeTaker,
		Slippage:       c.Slippage,
	}
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Market data
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.BaseURL = BaseURLFor(getEnv("BINANCE_BASE_URL", "us"))

	timeoutMS, err := getEnvAsIntRequired("REQUEST_TIMEOUT_MS", 5000)
	if err != nil {
		errs = append(errs, err.Error())
	} else if timeoutMS <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT_MS must be positive")
	}
	cfg.RequestTimeout = time.Duration(timeoutMS) * time.Millisecond

	cfg.MaxFetchRetries, err = getEnvAsIntRequired("MAX_FETCH_RETRIES", 3)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.MaxFetchRetries < 0 {
		errs = append(errs, "MAX_FETCH_RETRIES cannot be negative")
	}

	// Range
	cfg.Asset = strings.ToUpper(getEnv("ASSET", "BTC"))
	cfg.Currency = strings.ToUpper(getEnv("CURRENCY", "USDC"))

	cfg.CandleSize, err = getEnvAsIntRequired("CANDLE_SIZE", 60)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.Interval, err = IntervalForMinutes(cfg.CandleSize); err != nil {
		errs = append(errs, err.Error())
	}
	cfg.HistorySize = getEnvAsInt("HISTORY_SIZE", 10)

	cfg.Start, err = getEnvAsDateTime("START_DATE", "2023-08-01", "START_TIME", "00:00")
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.End, err = getEnvAsDateTime("END_DATE", "2024-08-02", "END_TIME", "00:00")
	if err != nil {
		errs = append(errs, err.Error())
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && !cfg.Start.Before(cfg.End) {
		errs = append(errs, "start date must be before end date")
	}

	// Simulation
	cfg.Strategy, err = strategy.ParseName(getEnv("STRATEGY", string(strategy.KeltnerChannel)))
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg.Params = strategy.DefaultConfig()
	k := &cfg.Params.Keltner
	k.ATRMultiplierMin = getEnvAsFloat("KELTNER_ATR_MULTIPLIER_MIN", k.ATRMultiplierMin)
	k.ATRMultiplierMax = getEnvAsFloat("KELTNER_ATR_MULTIPLIER_MAX", k.ATRMultiplierMax)
	k.ATRLength = getEnvAsInt("KELTNER_ATR_LENGTH", k.ATRLength)
	k.MovingAverageLength = getEnvAsInt("KELTNER_MA_LENGTH", k.MovingAverageLength)
	k.MovingAverageType = indicators.MovingAverageType(strings.ToUpper(getEnv("KELTNER_MA_TYPE", string(k.MovingAverageType))))

	cfg.Params.RSI.Overbought = getEnvAsFloat("RSI_OVERBOUGHT", cfg.Params.RSI.Overbought)
	cfg.Params.RSI.Oversold = getEnvAsFloat("RSI_OVERSOLD", cfg.Params.RSI.Oversold)
	if cfg.Params.RSI.Overbought > 100 || cfg.Params.RSI.Oversold < 0 {
		errs = append(errs, "RSI thresholds must lie between 0 and 100")
	}

	cfg.Params.Crossover.ShortLength = getEnvAsInt("CROSSOVER_SHORT_LENGTH", cfg.Params.Crossover.ShortLength)
	cfg.Params.Crossover.LongLength = getEnvAsInt("CROSSOVER_LONG_LENGTH", cfg.Params.Crossover.LongLength)

	if cfg.Strategy != "" {
		if err := cfg.Params.Validate(cfg.Strategy); err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s parameters: %v", cfg.Strategy, err))
		}
	}

	cfg.InitialBalance, err = getEnvAsFloatRequired("INITIAL_BALANCE", 1000)
	if err != nil {
		errs = append(errs, err.Error())
	} else if cfg.InitialBalance <= 0 {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cfg.Mode, err = backtesting.ParseMode(getEnv("EVALUATION_MODE", string(backtesting.ModeIncremental)))
	if err != nil {
		errs = append(errs, err.Error())
	}

	cfg.FeeMaker = getEnvAsFloat("FEE_MAKER", 0.15)
	cfg.FeeTaker = getEnvAsFloat("FEE_TAKER", 0.15)
	cfg.Slippage = getEnvAsFloat("SLIPPAGE", 0.05)
	if cfg.FeeMaker < 0 || cfg.FeeTaker < 0 || cfg.Slippage < 0 {
		errs = append(errs, "FEE_MAKER, FEE_TAKER and SLIPPAGE cannot be negative")
	}

	// Candle sources and caches
	cfg.CandleCSVPath = getEnv("CANDLE_CSV_PATH", "")
	cfg.CacheBackend = strings.ToLower(getEnv("CANDLE_CACHE", CacheSQLite))
	switch cfg.CacheBackend {
	case CacheNone, CacheSQLite, CacheRedis:
	default:
		errs = append(errs, fmt.Sprintf("CANDLE_CACHE must be one of %s, %s, %s", CacheNone, CacheSQLite, CacheRedis))
	}
	cfg.CandleCachePath = getEnv("CANDLE_CACHE_PATH", "./data/candles.db")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)
	cfg.RedisTTL = time.Duration(getEnvAsInt("REDIS_TTL_HOURS", 24)) * time.Hour

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	cfg.MetricsTextfile = getEnv("METRICS_TEXTFILE", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// BaseURLFor resolves the "us" and "global" shorthands to the exchange's REST
// endpoints. Anything else is taken as a literal URL.
func BaseURLFor(value string) string {
	switch strings.ToLower(value) {
	case "us":
		return binanceclient.BaseURLUS
	case "global":
		return binanceclient.BaseURLGlobal
	default:
		return value
	}
}

var intervals = map[int]string{
	1: "1m", 3: "3m", 5: "5m", 15: "15m", 30: "30m",
	60: "1h", 120: "2h", 240: "4h", 360: "6h", 480: "8h", 720: "12h",
	1440: "1d", 4320: "3d", 10080: "1w",
}

// IntervalForMinutes maps a candle size in minutes onto a Binance kline interval.
func IntervalForMinutes(minutes int) (string, error) {
	if iv, ok := intervals[minutes]; ok {
		return iv, nil
	}
	return "", fmt.Errorf("CANDLE_SIZE %d has no matching exchange interval", minutes)
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := getEnvAsIntRequired(key, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := getEnvAsFloatRequired(key, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDateTime joins a date and a time variable and parses them as UTC.
func getEnvAsDateTime(dateKey, defaultDate, timeKey, defaultTime string) (time.Time, error) {
	raw := getEnv(dateKey, defaultDate) + " " + getEnv(timeKey, defaultTime)
	t, err := time.ParseInLocation(dateTimeLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s/%s '%s': %w", dateKey, timeKey, raw, err)
	}
	return t, nil
}
