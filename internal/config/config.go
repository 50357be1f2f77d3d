package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	// PostgresDSN selects the pgx-backed order/reservation repositories when
	// set; empty keeps the in-memory repositories.
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string

	Gateway GatewayConfig
	Poller  PollerConfig
	Bus     BusConfig
}

type GatewayConfig struct {
	BaseURL     string
	CallbackURL string
	MerchantID  string
	Timeout     time.Duration

	// Amount ceiling for a single gateway transaction.
	MaxAmount string

	RetryAttempts    int
	RetryBackoff     time.Duration
	BreakerErrors    int
	BreakerSuccesses int
	BreakerTimeout   time.Duration
}

type PollerConfig struct {
	Interval time.Duration
	// Payments younger than MinAge are left for the push callback; older than
	// MaxAge are assumed handled by a previous scan.
	MinAge      time.Duration
	MaxAge      time.Duration
	BatchSize   int
	ReviewAfter time.Duration
}

type BusConfig struct {
	Buffer      int
	Concurrency int
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServiceName:  getenv("SERVICE_NAME", "commerce-fulfillment"),
		Env:          getenv("ENV", "dev"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		PostgresDSN:  getenv("POSTGRES_DSN", ""),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "")),
		Gateway: GatewayConfig{
			BaseURL:          getenv("PG_BASE_URL", "http://localhost:8082"),
			CallbackURL:      getenv("PG_CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback"),
			MerchantID:       getenv("PG_MERCHANT_ID", "looCommerce"),
			Timeout:          getenvDuration("PG_TIMEOUT", 3*time.Second),
			MaxAmount:        getenv("PG_MAX_AMOUNT", "10000000"),
			RetryAttempts:    getenvInt("PG_RETRY_ATTEMPTS", 3),
			RetryBackoff:     getenvDuration("PG_RETRY_BACKOFF", 100*time.Millisecond),
			BreakerErrors:    getenvInt("PG_BREAKER_ERRORS", 5),
			BreakerSuccesses: getenvInt("PG_BREAKER_SUCCESSES", 1),
			BreakerTimeout:   getenvDuration("PG_BREAKER_TIMEOUT", 10*time.Second),
		},
		Poller: PollerConfig{
			Interval:    getenvDuration("PAYMENT_POLL_INTERVAL", 30*time.Second),
			MinAge:      getenvDuration("PAYMENT_POLL_MIN_AGE", time.Minute),
			MaxAge:      getenvDuration("PAYMENT_POLL_MAX_AGE", 10*time.Minute),
			BatchSize:   getenvInt("PAYMENT_POLL_BATCH", 20),
			ReviewAfter: getenvDuration("PAYMENT_REVIEW_AFTER", 30*time.Minute),
		},
		Bus: BusConfig{
			Buffer:      getenvInt("BUS_BUFFER", 1024),
			Concurrency: getenvInt("BUS_CONCURRENCY", 8),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
