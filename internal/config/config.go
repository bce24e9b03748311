package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string
	OTLPEndpoint string

	// GatewayMode selects the payment gateway adapter: "sandbox" is the only
	// mode shipped with this repository.
	GatewayMode string

	// VerificationThreshold is the minimum verifier score that satisfies a
	// release condition.
	VerificationThreshold float64
	// BlockingFlags reject a proof submission regardless of score.
	BlockingFlags []string

	// AllowPartialRelease permits partial releases before every release
	// condition is met. Full releases always require eligibility.
	AllowPartialRelease bool

	LockTTL      time.Duration
	WriteRetries int
}

func Load() *Config {
	cfg := &Config{
		Port:                  getEnv("PORT", "8082"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		KafkaBrokers:          os.Getenv("KAFKA_BROKERS"),
		NatsURL:               os.Getenv("NATS_URL"),
		OTLPEndpoint:          getEnv("OTLP_ENDPOINT", "jaeger:4318"),
		GatewayMode:           getEnv("GATEWAY_MODE", "sandbox"),
		VerificationThreshold: getFloat("VERIFICATION_THRESHOLD", 0.7),
		AllowPartialRelease:   getBool("ALLOW_PARTIAL_RELEASE", false),
		LockTTL:               getDuration("LOCK_TTL", 30*time.Second),
		WriteRetries:          getInt("WRITE_RETRIES", 3),
	}

	if flags := os.Getenv("BLOCKING_FLAGS"); flags != "" {
		cfg.BlockingFlags = strings.Split(flags, ",")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
