// Package config loads the process-wide Config struct from environment
// variables, with optional local .env loading via godotenv — no framework,
// plain os.Getenv parsing, matching the teacher's env-var-heavy
// AutoTraderConfig.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every recognized configuration option from the external
// interfaces table. Times are "HH:MM" strings in UTC; parsing into
// time.Time-of-day happens in internal/scheduler, which owns the wall-
// clock-to-target-timestamp conversion.
type Config struct {
	// Identity
	EntityCode       string
	JurisdictionCode string
	BrokerCode       string
	BotID            string
	RootDir          string

	// Schedule
	OpenHHMM           string
	MidHHMM            string
	CloseHHMM          string
	MarketCloseHHMM    string
	HoldOpenMin        int
	HoldMidMin         int
	UnivAfterCloseMin  int
	TradingDays        []string
	PhaseGraceMin      int
	Timezone           string

	// Strategy enablement
	StratOpenEnabled  bool
	StratMidEnabled   bool
	StratCloseEnabled bool

	// Strategy sizing/weights
	MaxTrades          int
	CandidateMultiplier int
	Weights            []float64

	// Trailing stop
	TradingTrailingStopPct float64
	TrailPctOpen           float64
	TrailPctMid            float64
	TrailPctClose          float64
	HardCloseBufferSec     int
	TrailTightenFactor     float64

	// Risk
	MaxRiskPerTrade float64
	DailyLossLimit  float64

	// Ledger
	LedgerMaxAbsAmount     string
	LedgerEnforceDateWindow bool
	LedgerMaxBackdateDays  int
	LedgerMaxFutureMinutes int

	// Operator gate (for mapping assign/rollback)
	OperatorPassphraseHash string

	// HTTP status & control API
	APIListenAddr string
}

func getenvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvCSV(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvFloatCSV(key string, def []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Load reads .env (if present, silently ignored otherwise) then populates
// Config from the environment, applying the documented defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		EntityCode:       os.Getenv("ENTITY_CODE"),
		JurisdictionCode: os.Getenv("JURISDICTION_CODE"),
		BrokerCode:       os.Getenv("BROKER_CODE"),
		BotID:            os.Getenv("BOT_ID"),
		RootDir:          getenvDefault("TBOT_ROOT_DIR", "."),

		OpenHHMM:          getenvDefault("OPEN_HHMM", "14:30"),
		MidHHMM:           getenvDefault("MID_HHMM", "17:30"),
		CloseHHMM:         getenvDefault("CLOSE_HHMM", "20:45"),
		MarketCloseHHMM:   getenvDefault("MARKET_CLOSE_HHMM", "21:00"),
		HoldOpenMin:       getenvInt("HOLD_OPEN_MIN", 15),
		HoldMidMin:        getenvInt("HOLD_MID_MIN", 15),
		UnivAfterCloseMin: getenvInt("UNIV_AFTER_CLOSE_MIN", 30),
		TradingDays:       getenvCSV("TRADING_DAYS", []string{"mon", "tue", "wed", "thu", "fri"}),
		PhaseGraceMin:     getenvInt("TBOT_SUP_PHASE_GRACE_MIN", 2),
		Timezone:          getenvDefault("TIMEZONE", "UTC"),

		StratOpenEnabled:  getenvBool("STRAT_OPEN_ENABLED", true),
		StratMidEnabled:   getenvBool("STRAT_MID_ENABLED", true),
		StratCloseEnabled: getenvBool("STRAT_CLOSE_ENABLED", true),

		MaxTrades:           getenvInt("MAX_TRADES", 5),
		CandidateMultiplier: getenvInt("CANDIDATE_MULTIPLIER", 3),
		Weights:             getenvFloatCSV("WEIGHTS", []float64{1.0}),

		TradingTrailingStopPct: getenvFloat("TRADING_TRAILING_STOP_PCT", 0.02),
		TrailPctOpen:           getenvFloat("TRAIL_PCT_OPEN", 0.02),
		TrailPctMid:            getenvFloat("TRAIL_PCT_MID", 0.02),
		TrailPctClose:          getenvFloat("TRAIL_PCT_CLOSE", 0.01),
		HardCloseBufferSec:     getenvInt("HARD_CLOSE_BUFFER_SEC", 300),
		TrailTightenFactor:     getenvFloat("TRAIL_TIGHTEN_FACTOR", 0.5),

		MaxRiskPerTrade: getenvFloat("MAX_RISK_PER_TRADE", 0.01),
		DailyLossLimit:  getenvFloat("DAILY_LOSS_LIMIT", 0.03),

		LedgerMaxAbsAmount:      getenvDefault("LEDGER_MAX_ABS_AMOUNT", "100000000"),
		LedgerEnforceDateWindow: getenvBool("LEDGER_ENFORCE_DATE_WINDOW", false),
		LedgerMaxBackdateDays:   getenvInt("LEDGER_MAX_BACKDATE_DAYS", 14),
		LedgerMaxFutureMinutes:  getenvInt("LEDGER_MAX_FUTURE_MINUTES", 10),

		OperatorPassphraseHash: os.Getenv("TBOT_OPERATOR_PASSPHRASE_HASH"),

		APIListenAddr: getenvDefault("TBOT_API_LISTEN_ADDR", ":8090"),
	}
}
