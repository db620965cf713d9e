package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string

	BscScanURL     string
	BscScanAPIKey  string
	TronGridURL    string
	TronGridAPIKey string

	MinConfirmations int64
	ExplorerTimeout  time.Duration

	PollInterval     time.Duration
	PollInitialDelay time.Duration
	PollBatchSize    int
	PollWorkers      int

	PaymentTTL time.Duration

	JaegerEndpoint string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8082"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		NatsURL:      getEnv("NATS_URL", "nats://localhost:4222"),

		BscScanURL:     getEnv("BSCSCAN_URL", "https://api.bscscan.com"),
		BscScanAPIKey:  os.Getenv("BSCSCAN_API_KEY"),
		TronGridURL:    getEnv("TRONGRID_URL", "https://api.trongrid.io"),
		TronGridAPIKey: os.Getenv("TRONGRID_API_KEY"),

		MinConfirmations: getInt64("MIN_CONFIRMATIONS", 12),
		ExplorerTimeout:  getDuration("EXPLORER_TIMEOUT", 10*time.Second),

		PollInterval:     getDuration("POLL_INTERVAL", 30*time.Second),
		PollInitialDelay: getDuration("POLL_INITIAL_DELAY", 5*time.Second),
		PollBatchSize:    getInt("POLL_BATCH_SIZE", 5),
		PollWorkers:      getInt("POLL_WORKERS", 3),

		PaymentTTL: getDuration("PAYMENT_TTL", 30*time.Minute),

		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
