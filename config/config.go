package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Trace exporters accepted in OTEL_EXPORTER_TYPE.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterNone   = "none"
)

type Config struct {
	// Server
	Port        string // default: 8000
	Environment string // default: "development"

	// Upstream
	OllamaURL string // default: "http://localhost:11434"

	// Cache
	RedisURL string // default: "redis://localhost:6379"

	// Database (optional completion journal)
	DatabaseURL string

	// Observability
	OTELExporterType     string // "stdout", "otlp" or "none"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Usage accounting
	UsageWorkers   int // default: 4
	UsageQueueSize int // default: 1024
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8000"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		OllamaURL:            getEnv("OLLAMA_URL", "http://localhost:11434"),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", ExporterStdout),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.UsageWorkers, err = getEnvInt("USAGE_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.UsageQueueSize, err = getEnvInt("USAGE_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}

	// Validation
	if cfg.OllamaURL == "" {
		return nil, fmt.Errorf("OLLAMA_URL must not be empty")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL must not be empty")
	}
	switch cfg.OTELExporterType {
	case ExporterStdout, ExporterOTLP, ExporterNone:
	default:
		return nil, fmt.Errorf("OTEL_EXPORTER_TYPE must be stdout, otlp or none, got %q", cfg.OTELExporterType)
	}
	if cfg.UsageWorkers <= 0 {
		return nil, fmt.Errorf("USAGE_WORKERS must be positive, got %d", cfg.UsageWorkers)
	}
	if cfg.UsageQueueSize < 0 {
		return nil, fmt.Errorf("USAGE_QUEUE_SIZE must not be negative, got %d", cfg.UsageQueueSize)
	}

	return cfg, nil
}

// IsProduction reports whether the gateway runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
