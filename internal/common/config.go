package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	Webhook  WebhookConfig
	Worker   WorkerConfig
	OCR      OCRConfig
}

// DatabaseConfig holds database-related configuration. When DSN is empty
// the ingest repository falls back to a local SQLite file at Path.
type DatabaseConfig struct {
	DSN              string
	Path             string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	MaxFileMB       int64
	ShutdownTimeout time.Duration
}

// StorageConfig holds file storage configuration
type StorageConfig struct {
	Root string
}

// WebhookConfig holds outbound notification configuration
type WebhookConfig struct {
	URL             string
	Secret          string
	Events          []string
	MaxAttempts     int
	BaseDelay       time.Duration
	Timeout         time.Duration
	QueueDBPath     string
	ScanInterval    time.Duration
	MetricRetention time.Duration
}

// WorkerConfig holds background processing configuration
type WorkerConfig struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract   string
	TessdataDir string
	Language    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			Path:             getEnv("DB_PATH", "cutflow.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			MaxFileMB:       int64(getEnvAsInt("MAX_FILE_MB", 100)),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Root: getEnv("STORAGE_ROOT", "./files"),
		},
		Webhook: WebhookConfig{
			URL:             getEnv("WEBHOOK_URL", ""),
			Secret:          getEnv("WEBHOOK_SECRET", ""),
			Events:          splitCSV(getEnv("WEBHOOK_EVENTS", "")),
			MaxAttempts:     getEnvAsInt("WEBHOOK_MAX_ATTEMPTS", 3),
			BaseDelay:       getEnvAsDuration("WEBHOOK_BASE_DELAY", 2*time.Second),
			Timeout:         getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second),
			QueueDBPath:     getEnv("QUEUE_DB_PATH", "webhook_queue.db"),
			ScanInterval:    getEnvAsDuration("QUEUE_SCAN_INTERVAL", 30*time.Second),
			MetricRetention: getEnvAsDuration("METRIC_RETENTION", 7*24*time.Hour),
		},
		Worker: WorkerConfig{
			Workers:        getEnvAsInt("WORKERS", 4),
			QueueSize:      getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
		},
		OCR: OCRConfig{
			Tesseract:   getEnv("TESSERACT_CMD", "tesseract"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			Language:    getEnv("OCR_LANG", "eng"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return NewAppError("CONFIG_ERROR", "STORAGE_ROOT is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Webhook.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "WEBHOOK_MAX_ATTEMPTS must be >= 1", ErrInvalidInput)
	}
	if c.Server.MaxFileMB <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_FILE_MB must be > 0", ErrInvalidInput)
	}
	return nil
}
