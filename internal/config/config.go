package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (queue + latest-reading cache)
	RedisURL    string
	QueueName   string
	QueueDriver string // "redis" (capture uploader compatible) or "asynq"

	// PostgreSQL configuration
	DatabaseURL string

	// Capture API (photo download when jobs carry a URL instead of bytes)
	CaptureAPIURL string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
	MaxImageSize      int64

	// OCR configuration
	TesseractLang string

	// Metrics / health endpoint
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "aquapanel:jobs"),
		QueueDriver:       getEnvOrDefault("QUEUE_DRIVER", "redis"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		CaptureAPIURL:     getEnvOrDefault("CAPTURE_API_URL", ""),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 120000), // 2 minutes
		MaxImageSize:      getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 33554432), // 32MB
		TesseractLang:     getEnvOrDefault("TESSERACT_LANG", "eng"),
		MetricsAddr:       getEnvOrDefault("METRICS_ADDR", ":9464"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueDriver != "redis" && c.QueueDriver != "asynq" {
		return fmt.Errorf("QUEUE_DRIVER must be \"redis\" or \"asynq\", got %q", c.QueueDriver)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 64 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 64, got %d", c.WorkerConcurrency)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 268435456 { // 1KB to 256MB
		return fmt.Errorf("MAX_IMAGE_SIZE must be between 1KB and 256MB, got %d", c.MaxImageSize)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
