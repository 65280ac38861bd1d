package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"spot-trader/pkg/crypto"
)

// Config holds environment-driven settings for the spot trader.
type Config struct {
	Port string

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	Symbols          []string
	UseMockFeed      bool
	ExecutionEnabled bool

	// Risk
	RiskPerTrade      float64 // fraction of balance risked per trade
	MaxPositions      int
	MaxExposurePct    float64 // total open notional / balance ceiling
	DailyLossLimitPct float64 // trading halts for the day past this loss
	MaxDrawdownPct    float64 // entries blocked past this drawdown from peak equity
	PositionLossPct   float64 // single-position loss triggering emergency close
	MinOrderNotional  float64
	MaxOrderNotional  float64

	// Router
	MarketOrderMaxNotional float64 // at or below this, route as market
	TWAPMinNotional        float64 // above this, slice as TWAP
	TWAPSliceNotional      float64
	TWAPSliceInterval      time.Duration
	LimitOrderTimeout      time.Duration
	IntentTTL              time.Duration

	// Monitor
	MonitorInterval time.Duration
	MaxPositionAge  time.Duration
	StaleDataMaxAge time.Duration

	// Emergency
	KillSwitchFile string

	// Scorer
	ScorerConfigPath string
	MinScore         float64

	// Database
	DBPath string

	// Auth
	JWTSecret       string
	OperatorKey     string
	OperatorKeyHash string // bcrypt hash, takes precedence over OperatorKey

	// Exits
	TrailingStopPct float64 // 0 disables trailing stops
}

// Load reads environment variables (optionally via .env) into Config.
// Credential values may be sealed with CREDENTIALS_KEY; they are
// decrypted here so the rest of the app only ever sees plaintext.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	unseal, err := newUnsealer(os.Getenv("CREDENTIALS_KEY"))
	if err != nil {
		return nil, err
	}

	apiKey, err := unseal(os.Getenv("BINANCE_API_KEY"))
	if err != nil {
		return nil, fmt.Errorf("BINANCE_API_KEY: %w", err)
	}
	apiSecret, err := unseal(os.Getenv("BINANCE_API_SECRET"))
	if err != nil {
		return nil, fmt.Errorf("BINANCE_API_SECRET: %w", err)
	}
	jwtSecret, err := unseal(getEnv("JWT_SECRET", "dev-secret"))
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET: %w", err)
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:    apiKey,
		BinanceAPISecret: apiSecret,
		Symbols:          splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		UseMockFeed:      getEnv("USE_MOCK_FEED", "true") == "true",
		ExecutionEnabled: getEnv("EXECUTION_ENABLED", "true") == "true",

		RiskPerTrade:      getEnvFloat("RISK_PER_TRADE", 0.02),
		MaxPositions:      getEnvInt("MAX_POSITIONS", 5),
		MaxExposurePct:    getEnvFloat("MAX_EXPOSURE_PCT", 0.50),
		DailyLossLimitPct: getEnvFloat("DAILY_LOSS_LIMIT_PCT", 0.05),
		MaxDrawdownPct:    getEnvFloat("MAX_DRAWDOWN_PCT", 0.20),
		PositionLossPct:   getEnvFloat("POSITION_LOSS_PCT", 0.10),
		MinOrderNotional:  getEnvFloat("MIN_ORDER_NOTIONAL", 10.0),
		MaxOrderNotional:  getEnvFloat("MAX_ORDER_NOTIONAL", 100000.0),

		MarketOrderMaxNotional: getEnvFloat("MARKET_ORDER_MAX_NOTIONAL", 1000.0),
		TWAPMinNotional:        getEnvFloat("TWAP_MIN_NOTIONAL", 10000.0),
		TWAPSliceNotional:      getEnvFloat("TWAP_SLICE_NOTIONAL", 2500.0),
		TWAPSliceInterval:      getEnvDuration("TWAP_SLICE_INTERVAL", 10*time.Second),
		LimitOrderTimeout:      getEnvDuration("LIMIT_ORDER_TIMEOUT", 30*time.Second),
		IntentTTL:              getEnvDuration("INTENT_TTL", 5*time.Minute),

		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 5*time.Second),
		MaxPositionAge:  getEnvDuration("MAX_POSITION_AGE", 24*time.Hour),
		StaleDataMaxAge: getEnvDuration("STALE_DATA_MAX_AGE", 10*time.Second),

		KillSwitchFile: getEnv("KILL_SWITCH_FILE", "./data/KILL_SWITCH"),

		ScorerConfigPath: getEnv("SCORER_CONFIG", "./configs/scorer.yaml"),
		MinScore:         getEnvFloat("MIN_SCORE", 7.0),

		DBPath: getEnv("DB_PATH", "./data/trader.db"),

		JWTSecret:       jwtSecret,
		OperatorKey:     os.Getenv("OPERATOR_KEY"),
		OperatorKeyHash: os.Getenv("OPERATOR_KEY_HASH"),

		TrailingStopPct: getEnvFloat("TRAILING_STOP_PCT", 0),
	}, nil
}

// newUnsealer returns a function that passes plain values through and
// decrypts "enc:" values. Sealed values without a key are an error;
// failing open on credentials would be worse than failing to start.
func newUnsealer(keyB64 string) (func(string) (string, error), error) {
	if keyB64 == "" {
		return func(v string) (string, error) {
			if crypto.IsSealed(v) {
				return "", errors.New("sealed value but CREDENTIALS_KEY is not set")
			}
			return v, nil
		}, nil
	}

	key, err := crypto.KeyFromBase64(keyB64)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIALS_KEY: %w", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIALS_KEY: %w", err)
	}
	return func(v string) (string, error) {
		if !crypto.IsSealed(v) {
			return v, nil
		}
		return sealer.Open(v)
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
