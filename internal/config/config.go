package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string

	SupplierBaseURL   string
	SupplierCurrency  string
	SupplierLocale    string
	MarketCurrency    string
	MarketLocale      string
	PlatformRateRPS   int
	PlatformTimeoutMs int

	CandidateMax        int
	MatchAcceptMax      int
	SimilarityThreshold float64
	DiscountFloor       float64
	SearchTermMax       int

	RetryCount      int
	StageTimeoutSec int
	TaskTimeoutSec  int
	WorkerPoolSize  int
	WorkerPollSec   int

	TargetCurrency string
	RateRUBUSD     float64
	RateCNYUSD     float64

	CommissionPct float64
	DutyPct       float64
	AgentPct      float64
	PackagingFee  float64
	ShippingPerKg float64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		SupplierBaseURL:   getEnv("SUPPLIER_BASE_URL", "https://www.1688.com"),
		SupplierCurrency:  getEnv("SUPPLIER_CURRENCY", "CNY"),
		SupplierLocale:    getEnv("SUPPLIER_LOCALE", "en"),
		MarketCurrency:    getEnv("MARKET_CURRENCY", "RUB"),
		MarketLocale:      getEnv("MARKET_LOCALE", "ru"),
		PlatformRateRPS:   getEnvInt("PLATFORM_RATE_LIMIT_RPS", 2),
		PlatformTimeoutMs: getEnvInt("PLATFORM_TIMEOUT_MS", 30000),

		CandidateMax:        getEnvInt("CANDIDATE_MAX", 20),
		MatchAcceptMax:      getEnvInt("MATCH_ACCEPT_MAX", 5),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.6),
		DiscountFloor:       getEnvFloat("DISCOUNT_FLOOR", 0.30),
		SearchTermMax:       getEnvInt("SEARCH_TERM_MAX", 8),

		RetryCount:      getEnvInt("RETRY_COUNT", 3),
		StageTimeoutSec: getEnvInt("STAGE_TIMEOUT_SEC", 30),
		TaskTimeoutSec:  getEnvInt("TASK_TIMEOUT_SEC", 300),
		WorkerPoolSize:  getEnvInt("WORKER_POOL_SIZE", 4),
		WorkerPollSec:   getEnvInt("WORKER_POLL_SEC", 5),

		TargetCurrency: getEnv("TARGET_CURRENCY", "USD"),
		RateRUBUSD:     getEnvFloat("RATE_RUB_USD", 85.0),
		RateCNYUSD:     getEnvFloat("RATE_CNY_USD", 7.14),

		CommissionPct: getEnvFloat("COMMISSION_PCT", 0.27),
		DutyPct:       getEnvFloat("DUTY_PCT", 0.07),
		AgentPct:      getEnvFloat("AGENT_PCT", 0.05),
		PackagingFee:  getEnvFloat("PACKAGING_FEE", 0.10),
		ShippingPerKg: getEnvFloat("SHIPPING_PER_KG", 1.70),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
