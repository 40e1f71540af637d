package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	Port string

	// Coordinator loops
	MainLoopInterval    time.Duration
	MonitorLoopInterval time.Duration
	SignalBatchSize     int
	SessionRetention    time.Duration

	// Default per-session limits (overridable per session)
	MaxDailyTrades   int
	MaxOpenPositions int

	// Gateway retry policy
	GatewayMaxAttempts    int
	GatewayBaseDelay      time.Duration
	GatewayAttemptTimeout time.Duration

	// Venue simulator
	VenueConfigPath string
	VenueSeed       int64

	// Risk limits
	MaxOrderValue    float64
	MaxTotalExposure float64
	MaxDailyLoss     float64

	// Router
	RoutingHistorySize int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		MainLoopInterval:      getEnvDuration("MAIN_LOOP_INTERVAL", time.Second),
		MonitorLoopInterval:   getEnvDuration("MONITOR_LOOP_INTERVAL", 30*time.Second),
		SignalBatchSize:       getEnvInt("SIGNAL_BATCH_SIZE", 10),
		SessionRetention:      getEnvDuration("SESSION_RETENTION", 24*time.Hour),
		MaxDailyTrades:        getEnvInt("MAX_DAILY_TRADES", 100),
		MaxOpenPositions:      getEnvInt("MAX_OPEN_POSITIONS", 10),
		GatewayMaxAttempts:    getEnvInt("GATEWAY_MAX_ATTEMPTS", 3),
		GatewayBaseDelay:      getEnvDuration("GATEWAY_BASE_DELAY", 100*time.Millisecond),
		GatewayAttemptTimeout: getEnvDuration("GATEWAY_ATTEMPT_TIMEOUT", 5*time.Second),
		VenueConfigPath:       getEnv("VENUE_CONFIG_PATH", "./config/venues.yaml"),
		VenueSeed:             int64(getEnvInt("VENUE_SEED", 0)),
		MaxOrderValue:         getEnvFloat("MAX_ORDER_VALUE", 250000),
		MaxTotalExposure:      getEnvFloat("MAX_TOTAL_EXPOSURE", 1000000),
		MaxDailyLoss:          getEnvFloat("MAX_DAILY_LOSS", 50000),
		RoutingHistorySize:    getEnvInt("ROUTING_HISTORY_SIZE", 500),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
