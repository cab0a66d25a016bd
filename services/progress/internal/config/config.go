// Package config reads the progress service settings that sit on top of the
// shared platform config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Relay kinds.
const (
	RelayNone = "none"
	RelayNATS = "nats"
	RelayAMQP = "amqp"
)

type Config struct {
	GRPCAddr     string
	StoreBackend string
	DatabaseURL  string
	RedisURL     string
	Relay        string
	NATSURL      string
	AMQPURL      string
	AMQPExchange string
	OutlineFile  string
	JWTSecret    string
	JWTIssuer    string

	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() (Config, error) {
	cfg := Config{
		GRPCAddr:     envString("GRPC_ADDR", ":9090"),
		StoreBackend: strings.ToLower(envString("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  envString("DATABASE_URL", ""),
		RedisURL:     envString("REDIS_URL", ""),
		Relay:        strings.ToLower(envString("RELAY", RelayNone)),
		NATSURL:      envString("NATS_URL", ""),
		AMQPURL:      envString("AMQP_URL", ""),
		AMQPExchange: envString("AMQP_EXCHANGE", "lems.progress"),
		OutlineFile:  envString("OUTLINE_FILE", ""),
		JWTSecret:    envString("JWT_SECRET", ""),
		JWTIssuer:    envString("JWT_ISSUER", ""),

		CBMaxRequests:      uint32(envInt("CB_MAX_REQUESTS", 5)),
		CBInterval:         envDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:          envDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold: uint32(envInt("CB_FAILURE_THRESHOLD", 5)),

		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, errors.New("REDIS_URL is required for the redis backend")
		}
	case BackendMongo:
		// MONGO_URI is read by mongoconn.LoadConfig.
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	switch cfg.Relay {
	case RelayNone, RelayNATS:
	case RelayAMQP:
		if cfg.AMQPURL == "" {
			return Config{}, errors.New("AMQP_URL is required for the amqp relay")
		}
	default:
		return Config{}, fmt.Errorf("unknown RELAY %q", cfg.Relay)
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
