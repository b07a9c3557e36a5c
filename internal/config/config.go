/**
 * Configuration for imagetext
 *
 * Loads configuration from environment variables, optionally seeded from a
 * .env file. The Vision API key is deliberately not required here: a missing
 * key surfaces as a failed extraction on the first attempt.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

	QueueBackendAsynq = "asynq"
	QueueBackendRedis = "redis"
)

// Config holds imagetext configuration
type Config struct {
	// Google Cloud Vision
	VisionAPIKey   string
	VisionEndpoint string
	OCRTimeout     time.Duration

	// Image acquisition
	MediaRoot    string
	MaxImageSize int64

	// Queue worker
	RedisURL      string
	QueueBackend  string
	QueueName     string
	EventsChannel string

	// Logging
	LogLevel string
	LogFile  string
}

// LoadEnvFile seeds the environment from a dotenv file. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	cfg := &Config{
		VisionAPIKey:   os.Getenv("GOOGLE_VISION_API_KEY"),
		VisionEndpoint: getEnvOrDefault("VISION_ENDPOINT", DefaultVisionEndpoint),
		OCRTimeout:     time.Duration(getEnvAsIntOrDefault("OCR_TIMEOUT", 30000)) * time.Millisecond, // 30 seconds
		MediaRoot:      getEnvOrDefault("MEDIA_ROOT", cwd),
		MaxImageSize:   getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 10485760), // 10MB
		RedisURL:       getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueBackend:   getEnvOrDefault("QUEUE_BACKEND", QueueBackendAsynq),
		QueueName:      getEnvOrDefault("QUEUE_NAME", "imagetext:jobs"),
		EventsChannel:  getEnvOrDefault("EVENTS_CHANNEL", "imagetext:events"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:        getEnvOrDefault("LOG_FILE", "imagetext.log"),
	}

	if abs, err := filepath.Abs(cfg.MediaRoot); err == nil {
		cfg.MediaRoot = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.VisionEndpoint == "" {
		return fmt.Errorf("VISION_ENDPOINT is required")
	}

	if c.OCRTimeout < time.Second || c.OCRTimeout > 5*time.Minute {
		return fmt.Errorf("OCR_TIMEOUT must be between 1s and 5m, got %v", c.OCRTimeout)
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 20971520 { // 1KB to 20MB
		return fmt.Errorf("MAX_IMAGE_SIZE must be between 1KB and 20MB, got %d", c.MaxImageSize)
	}

	if c.MediaRoot == "" {
		return fmt.Errorf("MEDIA_ROOT is required")
	}

	switch c.QueueBackend {
	case QueueBackendAsynq, QueueBackendRedis:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendAsynq, QueueBackendRedis, c.QueueBackend)
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
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
