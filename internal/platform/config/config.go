package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean; sensible defaults keep local development
// zero-config.
type Server struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  string
	AuditTopic    string
	JWTSigningKey string
	TxTimeout     time.Duration
	// SequenceMaxRetries bounds the identifier insert-retry loop before the
	// generator reports exhaustion.
	SequenceMaxRetries int
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:               getenv("ASSURLY_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		AuditTopic:         getenv("AUDIT_TOPIC", "assurly.lifecycle.audit"),
		JWTSigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		TxTimeout:          5 * time.Second,
		SequenceMaxRetries: 5,
	}
	if cfg.JWTSigningKey == "" {
		// Development default - must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if v := os.Getenv("TX_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.TxTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SEQUENCE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SequenceMaxRetries = n
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
